package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxFrameLogLen bounds LST:FRAME:{device_id} so a chatty device can't
// grow its raw-frame log without limit.
const MaxFrameLogLen = 2000

// Store is the Redis-backed inventory: device/terminal/item hashes, their
// membership sets, the raw-frame and data-time logs, and the channel bus
// the supervisor and gateway listen on.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Direction indicates which way a logged frame travelled.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// --- devices ---

// AddDevice stores d and adds its ID to SET:DEVICE, then publishes
// CHANNEL:DEVICE_ADD.
func (s *Store) AddDevice(ctx context.Context, d Device) error {
	if err := s.writeDevice(ctx, d); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, setDeviceKey, d.ID).Err(); err != nil {
		return fmt.Errorf("inventory: add device to set: %w", err)
	}
	return s.publishDevice(ctx, ChannelDeviceAdd, d)
}

// FreshDevice overwrites d's hash fields and publishes CHANNEL:DEVICE_FRESH,
// without touching its set membership.
func (s *Store) FreshDevice(ctx context.Context, d Device) error {
	if err := s.writeDevice(ctx, d); err != nil {
		return err
	}
	return s.publishDevice(ctx, ChannelDeviceFresh, d)
}

func (s *Store) writeDevice(ctx context.Context, d Device) error {
	err := s.rdb.HSet(ctx, deviceKey(d.ID), map[string]interface{}{
		"id": d.ID, "name": d.Name, "ip": d.IP, "port": d.Port,
		"identify": d.Identify, "status": d.Status, "protocol": d.Protocol,
	}).Err()
	if err != nil {
		return fmt.Errorf("inventory: write device %d: %w", d.ID, err)
	}
	return nil
}

func (s *Store) publishDevice(ctx context.Context, channel string, d Device) error {
	return s.rdb.Publish(ctx, channel, deviceKey(d.ID)).Err()
}

// DeleteDevice removes the device's hash and set membership, deletes every
// terminal bound to it, and publishes CHANNEL:DEVICE_DEL carrying the ID.
func (s *Store) DeleteDevice(ctx context.Context, deviceID int64) error {
	termIDs, err := s.rdb.SMembers(ctx, setDeviceTermKey(deviceID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("inventory: list device terms: %w", err)
	}
	for _, idStr := range termIDs {
		termID, convErr := strconv.ParseInt(idStr, 10, 64)
		if convErr != nil {
			continue
		}
		if err := s.DeleteTerm(ctx, deviceID, termID); err != nil {
			return err
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, deviceKey(deviceID))
	pipe.SRem(ctx, setDeviceKey, deviceID)
	pipe.Del(ctx, setDeviceTermKey(deviceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("inventory: delete device %d: %w", deviceID, err)
	}
	return s.rdb.Publish(ctx, ChannelDeviceDel, deviceID).Err()
}

// ListDevices loads every device from SET:DEVICE.
func (s *Store) ListDevices(ctx context.Context) ([]Device, error) {
	ids, err := s.rdb.SMembers(ctx, setDeviceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("inventory: list devices: %w", err)
	}
	devices := make([]Device, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		d, err := s.GetDevice(ctx, id)
		if err != nil {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// GetDevice loads one device's hash.
func (s *Store) GetDevice(ctx context.Context, deviceID int64) (Device, error) {
	m, err := s.rdb.HGetAll(ctx, deviceKey(deviceID)).Result()
	if err != nil {
		return Device{}, fmt.Errorf("inventory: get device %d: %w", deviceID, err)
	}
	if len(m) == 0 {
		return Device{}, redis.Nil
	}
	port, _ := strconv.Atoi(m["port"])
	return Device{
		ID: deviceID, Name: m["name"], IP: m["ip"], Port: port,
		Identify: m["identify"], Status: m["status"], Protocol: m["protocol"],
	}, nil
}

// --- terminals ---

// AddTerm stores t, binds it to its device's SET:DEVICE_TERM set, and
// publishes CHANNEL:TERM_ADD.
func (s *Store) AddTerm(ctx context.Context, t Terminal) error {
	err := s.rdb.HSet(ctx, termKey(t.ID), map[string]interface{}{
		"id": t.ID, "name": t.Name, "address": t.Address,
		"identify": t.Identify, "protocol": t.Protocol, "device_id": t.DeviceID,
	}).Err()
	if err != nil {
		return fmt.Errorf("inventory: write terminal %d: %w", t.ID, err)
	}
	if err := s.rdb.SAdd(ctx, setTermKey, t.ID).Err(); err != nil {
		return fmt.Errorf("inventory: add terminal to set: %w", err)
	}
	if err := s.rdb.SAdd(ctx, setDeviceTermKey(t.DeviceID), t.ID).Err(); err != nil {
		return fmt.Errorf("inventory: bind terminal to device: %w", err)
	}
	return s.rdb.Publish(ctx, ChannelTermAdd, termKey(t.ID)).Err()
}

// DeleteTerm removes the terminal's hash and its binding to every item
// (through DeleteTermItem; the item hashes themselves are kept), and
// publishes CHANNEL:TERM_DEL.
func (s *Store) DeleteTerm(ctx context.Context, deviceID, termID int64) error {
	itemIDs, err := s.rdb.SMembers(ctx, setTermItemKey(termID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("inventory: list term items: %w", err)
	}
	for _, idStr := range itemIDs {
		itemID, convErr := strconv.ParseInt(idStr, 10, 64)
		if convErr != nil {
			continue
		}
		if err := s.DeleteTermItem(ctx, deviceID, termID, itemID); err != nil {
			return err
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, termKey(termID))
	pipe.SRem(ctx, setTermKey, termID)
	pipe.SRem(ctx, setDeviceTermKey(deviceID), termID)
	pipe.Del(ctx, setTermItemKey(termID))
	pipe.Del(ctx, listFrameKey(deviceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("inventory: delete terminal %d: %w", termID, err)
	}
	return s.rdb.Publish(ctx, ChannelTermDel, fmt.Sprintf(`{"device_id":%d,"term_id":%d}`, deviceID, termID)).Err()
}

// ListDeviceTerms loads every terminal bound to deviceID.
func (s *Store) ListDeviceTerms(ctx context.Context, deviceID int64) ([]Terminal, error) {
	ids, err := s.rdb.SMembers(ctx, setDeviceTermKey(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("inventory: list device terms: %w", err)
	}
	terms := make([]Terminal, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		m, err := s.rdb.HGetAll(ctx, termKey(id)).Result()
		if err != nil || len(m) == 0 {
			continue
		}
		terms = append(terms, Terminal{
			ID: id, Name: m["name"], Address: m["address"], Identify: m["identify"],
			Protocol: m["protocol"], DeviceID: deviceID,
		})
	}
	return terms, nil
}

// GetTerm loads one terminal's hash.
func (s *Store) GetTerm(ctx context.Context, termID int64) (Terminal, error) {
	m, err := s.rdb.HGetAll(ctx, termKey(termID)).Result()
	if err != nil {
		return Terminal{}, fmt.Errorf("inventory: get terminal %d: %w", termID, err)
	}
	if len(m) == 0 {
		return Terminal{}, redis.Nil
	}
	deviceID, _ := strconv.ParseInt(m["device_id"], 10, 64)
	return Terminal{
		ID: termID, Name: m["name"], Address: m["address"], Identify: m["identify"],
		Protocol: m["protocol"], DeviceID: deviceID,
	}, nil
}

// --- items ---

// AddItem stores i, adds its ID to SET:ITEM, and publishes CHANNEL:ITEM_ADD.
func (s *Store) AddItem(ctx context.Context, i Item) error {
	err := s.rdb.HSet(ctx, itemKey(i.ID), map[string]interface{}{
		"id": i.ID, "name": i.Name, "view_code": i.ViewCode, "func_type": i.FuncType,
	}).Err()
	if err != nil {
		return fmt.Errorf("inventory: write item %d: %w", i.ID, err)
	}
	if err := s.rdb.SAdd(ctx, setItemKey, i.ID).Err(); err != nil {
		return fmt.Errorf("inventory: add item to set: %w", err)
	}
	return s.rdb.Publish(ctx, ChannelItemAdd, itemKey(i.ID)).Err()
}

// GetItem loads one item's hash.
func (s *Store) GetItem(ctx context.Context, itemID int64) (Item, error) {
	m, err := s.rdb.HGetAll(ctx, itemKey(itemID)).Result()
	if err != nil {
		return Item{}, fmt.Errorf("inventory: get item %d: %w", itemID, err)
	}
	if len(m) == 0 {
		return Item{}, redis.Nil
	}
	return Item{ID: itemID, Name: m["name"], ViewCode: m["view_code"], FuncType: m["func_type"]}, nil
}

// ListItems loads every item from SET:ITEM.
func (s *Store) ListItems(ctx context.Context) ([]Item, error) {
	ids, err := s.rdb.SMembers(ctx, setItemKey).Result()
	if err != nil {
		return nil, fmt.Errorf("inventory: list items: %w", err)
	}
	items := make([]Item, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		it, err := s.GetItem(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// DeleteItem removes the item's hash and set membership, and publishes
// CHANNEL:ITEM_DEL.
func (s *Store) DeleteItem(ctx context.Context, itemID int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, itemKey(itemID))
	pipe.SRem(ctx, setItemKey, itemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("inventory: delete item %d: %w", itemID, err)
	}
	return s.rdb.Publish(ctx, ChannelItemDel, itemID).Err()
}

// --- term/item bindings ---

// AddTermItem binds ti, adds it to SET:TERM_ITEM:{term_id}, writes the
// protocol-code mapping hash, and publishes CHANNEL:TERM_ITEM_ADD.
func (s *Store) AddTermItem(ctx context.Context, protocol string, deviceID int64, ti TermItem) error {
	err := s.rdb.HSet(ctx, termItemKey(ti.TermID, ti.ItemID), map[string]interface{}{
		"id": ti.ID, "term_id": ti.TermID, "item_id": ti.ItemID,
		"protocol_code": ti.ProtocolCode, "base_val": ti.BaseVal,
		"coefficient": ti.Coefficient, "db_save_sql": ti.DBSaveSQL, "code_type": ti.CodeType,
	}).Err()
	if err != nil {
		return fmt.Errorf("inventory: write term item: %w", err)
	}
	if err := s.rdb.SAdd(ctx, setTermItemKey(ti.TermID), ti.ItemID).Err(); err != nil {
		return fmt.Errorf("inventory: add term item to set: %w", err)
	}
	mkey := mappingKey(protocol, deviceID, ti.ProtocolCode)
	if err := s.rdb.HSet(ctx, mkey, map[string]interface{}{
		"id": ti.ID, "term_id": ti.TermID, "item_id": ti.ItemID,
		"protocol_code": ti.ProtocolCode, "base_val": ti.BaseVal, "coefficient": ti.Coefficient,
	}).Err(); err != nil {
		return fmt.Errorf("inventory: write protocol mapping: %w", err)
	}
	return s.rdb.Publish(ctx, ChannelTermItemAdd, termItemKey(ti.TermID, ti.ItemID)).Err()
}

// DeleteTermItem removes the binding hash, its set membership and the
// protocol-code mapping that points at it, and publishes
// CHANNEL:TERM_ITEM_DEL.
func (s *Store) DeleteTermItem(ctx context.Context, deviceID, termID, itemID int64) error {
	code, err := s.rdb.HGet(ctx, termItemKey(termID, itemID), "protocol_code").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("inventory: read term item %d/%d: %w", termID, itemID, err)
	}
	mappings, err := s.rdb.Keys(ctx, mappingKey("*", deviceID, code)).Result()
	if err != nil {
		return fmt.Errorf("inventory: find protocol mapping: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, termItemKey(termID, itemID))
	pipe.SRem(ctx, setTermItemKey(termID), itemID)
	for _, k := range mappings {
		if s.rdb.HGet(ctx, k, "term_id").Val() == strconv.FormatInt(termID, 10) &&
			s.rdb.HGet(ctx, k, "item_id").Val() == strconv.FormatInt(itemID, 10) {
			pipe.Del(ctx, k)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("inventory: delete term item %d/%d: %w", termID, itemID, err)
	}
	payload := fmt.Sprintf(`{"device_id":%d,"term_id":%d,"item_id":%d}`, deviceID, termID, itemID)
	return s.rdb.Publish(ctx, ChannelTermItemDel, payload).Err()
}

// GetTermItem loads one term/item binding's hash, the lookup the command
// gateway performs to validate a call/ctrl request and the supervisor
// performs to resolve its wire address before dispatching to the owning
// device actor.
func (s *Store) GetTermItem(ctx context.Context, termID, itemID int64) (TermItem, error) {
	m, err := s.rdb.HGetAll(ctx, termItemKey(termID, itemID)).Result()
	if err != nil {
		return TermItem{}, fmt.Errorf("inventory: get term item %d/%d: %w", termID, itemID, err)
	}
	if len(m) == 0 {
		return TermItem{}, redis.Nil
	}
	id, _ := strconv.ParseInt(m["id"], 10, 64)
	base, _ := strconv.ParseFloat(m["base_val"], 64)
	coeff, _ := strconv.ParseFloat(m["coefficient"], 64)
	codeType, _ := strconv.ParseUint(m["code_type"], 10, 8)
	return TermItem{
		ID: id, TermID: termID, ItemID: itemID, ProtocolCode: m["protocol_code"],
		BaseVal: base, Coefficient: coeff, DBSaveSQL: m["db_save_sql"], CodeType: uint8(codeType),
	}, nil
}

// FindByProtocolCode resolves an incoming information object address back
// to its term/item binding, the lookup the measurement pipeline performs
// on every sample.
func (s *Store) FindByProtocolCode(ctx context.Context, protocol string, deviceID int64, protocolCode string) (TermItem, bool, error) {
	m, err := s.rdb.HGetAll(ctx, mappingKey(protocol, deviceID, protocolCode)).Result()
	if err != nil {
		return TermItem{}, false, fmt.Errorf("inventory: find mapping: %w", err)
	}
	if len(m) == 0 {
		return TermItem{}, false, nil
	}
	termID, _ := strconv.ParseInt(m["term_id"], 10, 64)
	itemID, _ := strconv.ParseInt(m["item_id"], 10, 64)
	base, _ := strconv.ParseFloat(m["base_val"], 64)
	coeff, _ := strconv.ParseFloat(m["coefficient"], 64)
	return TermItem{
		TermID: termID, ItemID: itemID, ProtocolCode: protocolCode,
		BaseVal: base, Coefficient: coeff,
	}, true, nil
}

// --- data and logs ---

// SaveData records the latest value for a device/term/item triple, keyed
// by the sample's timestamp, and appends that timestamp to its rolling
// data-time list.
func (s *Store) SaveData(ctx context.Context, deviceID, termID, itemID int64, at time.Time, value string) error {
	stamp := at.Format(time.RFC3339Nano)
	if err := s.rdb.HSet(ctx, dataKey(deviceID, termID, itemID), stamp, value).Err(); err != nil {
		return fmt.Errorf("inventory: save data: %w", err)
	}
	if err := s.rdb.RPush(ctx, listDataTimeKey(deviceID, termID, itemID), stamp).Err(); err != nil {
		return fmt.Errorf("inventory: append data time: %w", err)
	}
	return nil
}

// AppendFrameLog records one raw APDU on the wire, trimmed to
// MaxFrameLogLen entries.
func (s *Store) AppendFrameLog(ctx context.Context, deviceID int64, dir Direction, at time.Time, frame []byte) error {
	entry := fmt.Sprintf("%s,%s,% X", at.Format(time.RFC3339Nano), dir, frame)
	key := listFrameKey(deviceID)
	if err := s.rdb.RPush(ctx, key, entry).Err(); err != nil {
		return fmt.Errorf("inventory: append frame log: %w", err)
	}
	return s.rdb.LTrim(ctx, key, -MaxFrameLogLen, -1).Err()
}

// Publish emits payload on an arbitrary channel, used by the command
// gateway to publish call/ctrl requests, the supervisor to publish their
// results, and the measurement pipeline to publish collected data and
// warnings.
func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription to the given channels; the caller must
// Close() the returned PubSub when done.
func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channels...)
}
