// Package inventory is the Redis-backed store of devices, terminals and
// items: the collector's configuration database and its change-event bus,
// ported key-for-key from the original service's redis_key layout so a
// Redis instance shared with that service stays readable by both.
package inventory

import "fmt"

// Hash keys, one per entity, matching the original's HS: namespace.
func deviceKey(deviceID int64) string   { return fmt.Sprintf("HS:DEVICE:%d", deviceID) }
func termKey(termID int64) string       { return fmt.Sprintf("HS:TERM:%d", termID) }
func itemKey(itemID int64) string       { return fmt.Sprintf("HS:ITEM:%d", itemID) }
func termItemKey(termID, itemID int64) string {
	return fmt.Sprintf("HS:TERM_ITEM:%d:%d", termID, itemID)
}
func mappingKey(protocol string, deviceID int64, protocolCode string) string {
	return fmt.Sprintf("HS:MAPPING:%s:%d:%s", protocol, deviceID, protocolCode)
}
func dataKey(deviceID, termID, itemID int64) string {
	return fmt.Sprintf("HS:DATA:%d:%d:%d", deviceID, termID, itemID)
}

// Set keys: membership lists of primary keys, matching the original's
// SET: namespace.
const (
	setDeviceKey = "SET:DEVICE"
	setTermKey   = "SET:TERM"
	setItemKey   = "SET:ITEM"
)

func setDeviceTermKey(deviceID int64) string { return fmt.Sprintf("SET:DEVICE_TERM:%d", deviceID) }
func setTermItemKey(termID int64) string     { return fmt.Sprintf("SET:TERM_ITEM:%d", termID) }

// List keys: append-only logs, matching the original's LST: namespace.
func listFrameKey(deviceID int64) string { return fmt.Sprintf("LST:FRAME:%d", deviceID) }
func listDataTimeKey(deviceID, termID, itemID int64) string {
	return fmt.Sprintf("LST:DATA_TIME:%d:%d:%d", deviceID, termID, itemID)
}

// Pub/sub channel names, matching the original's CHANNEL: namespace.
const (
	ChannelDeviceAdd   = "CHANNEL:DEVICE_ADD"
	ChannelDeviceFresh = "CHANNEL:DEVICE_FRESH"
	ChannelDeviceDel   = "CHANNEL:DEVICE_DEL"
	ChannelTermAdd     = "CHANNEL:TERM_ADD"
	ChannelTermDel     = "CHANNEL:TERM_DEL"
	ChannelItemAdd     = "CHANNEL:ITEM_ADD"
	ChannelItemDel     = "CHANNEL:ITEM_DEL"
	ChannelTermItemAdd = "CHANNEL:TERM_ITEM_ADD"
	ChannelTermItemDel = "CHANNEL:TERM_ITEM_DEL"
	ChannelDeviceCall  = "CHANNEL:DEVICE_CALL"
	ChannelDeviceCtrl  = "CHANNEL:DEVICE_CTRL"
)

// ChannelDeviceCallResult and ChannelDeviceCtrlResult are per-item reply
// channels, addressed by the specific device/terminal/item triple being
// called or controlled.
func ChannelDeviceCallResult(deviceID, termID, itemID int64) string {
	return fmt.Sprintf("CHANNEL:DEVICE_CALL:%d:%d:%d", deviceID, termID, itemID)
}

func ChannelDeviceCtrlResult(deviceID, termID, itemID int64) string {
	return fmt.Sprintf("CHANNEL:DEVICE_CTRL:%d:%d:%d", deviceID, termID, itemID)
}

// ChannelDeviceData carries every successfully collected sample.
func ChannelDeviceData(deviceID, termID, itemID int64) string {
	return fmt.Sprintf("CHANNEL:DEVICE_DATA:%d:%d:%d", deviceID, termID, itemID)
}

// ChannelWarning carries quality-alarm notifications for a sample.
func ChannelWarning(deviceID, termID, itemID int64) string {
	return fmt.Sprintf("CHANNEL:WARNING:%d:%d:%d", deviceID, termID, itemID)
}
