// Package measure is the collector's measurement pipeline: it takes the
// raw InformationSample stream from every device actor, resolves each
// sample against the inventory's term/item bindings, applies the item's
// scaling, persists the reading, and republishes it on the data channel
// bus. A sample whose address has no binding is logged and dropped; one
// whose quality descriptor reports IV (invalid) is republished as a
// warning instead of a measurement. Other quality bits (NT/SB/BL/OV)
// still count as topical data and flow through normally.
package measure

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yobol/iec104collector/internal/asdu104"
	"github.com/yobol/iec104collector/internal/device"
	"github.com/yobol/iec104collector/internal/inventory"
)

// Pipeline drains a channel of InformationSample and turns each into a
// persisted, published measurement.
type Pipeline struct {
	store    *inventory.Store
	protocol string
	log      *logrus.Entry
}

// New builds a Pipeline. protocol names the collector's own protocol
// (matched against the mapping key's protocol field, "iec104" for this
// collector) so the same Redis instance can host bindings for more than
// one protocol without collision.
func New(store *inventory.Store, protocol string, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{store: store, protocol: protocol, log: log.WithField("component", "measure")}
}

// Run drains samples until the channel closes or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, samples <-chan device.InformationSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			p.process(ctx, s)
		}
	}
}

// process is the six-step pipeline: extract a raw value, resolve the
// binding, scale, persist, publish, and — when the sample's IV bit is
// set — publish a warning instead of (not in addition to) the
// measurement.
func (p *Pipeline) process(ctx context.Context, s device.InformationSample) {
	raw, quality, ok := extractValue(s.Object)
	if !ok {
		return // command echoes and system-type objects carry no measurement
	}

	protocolCode := fmt.Sprintf("%d", s.Object.Addr())
	binding, found, err := p.store.FindByProtocolCode(ctx, p.protocol, int64(s.CommonAddr), protocolCode)
	if err != nil {
		p.log.WithError(err).Error("resolve binding")
		return
	}
	if !found {
		p.log.WithFields(logrus.Fields{
			"common_addr": s.CommonAddr, "ioa": s.Object.Addr(),
		}).Debug("no term/item binding for this address")
		return
	}

	value := raw*binding.Coefficient + binding.BaseVal
	at := s.RecvTime

	if quality.Invalid() {
		p.publishWarning(ctx, int64(s.CommonAddr), binding, at, value, quality)
		return
	}

	if err := p.store.SaveData(ctx, int64(s.CommonAddr), binding.TermID, binding.ItemID, at, formatValue(value)); err != nil {
		p.log.WithError(err).Error("persist measurement")
		return
	}
	payload := dataPayload(int64(s.CommonAddr), binding, at, value)
	channel := inventory.ChannelDeviceData(int64(s.CommonAddr), binding.TermID, binding.ItemID)
	if err := p.store.Publish(ctx, channel, payload); err != nil {
		p.log.WithError(err).Error("publish measurement")
	}
}

func (p *Pipeline) publishWarning(ctx context.Context, deviceID int64, binding inventory.TermItem, at time.Time, value float64, quality asdu104.Quality) {
	payload := fmt.Sprintf(
		`{"device_id":%d,"term_id":%d,"item_id":%d,"time":%q,"value":%s,"warn_msg":"quality=%#x"}`,
		deviceID, binding.TermID, binding.ItemID, at.Format(time.RFC3339Nano), formatValue(value), uint8(quality),
	)
	channel := inventory.ChannelWarning(deviceID, binding.TermID, binding.ItemID)
	if err := p.store.Publish(ctx, channel, payload); err != nil {
		p.log.WithError(err).Error("publish warning")
	}
}

func dataPayload(deviceID int64, binding inventory.TermItem, at time.Time, value float64) string {
	return fmt.Sprintf(
		`{"device_id":%d,"term_id":%d,"item_id":%d,"time":%q,"value":%s}`,
		deviceID, binding.TermID, binding.ItemID, at.Format(time.RFC3339Nano), formatValue(value),
	)
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}

// extractValue pulls the raw numeric value and quality descriptor out of
// an information object, the type switch this sum-type design replaces
// reflective field lookup with. ok is false for object kinds that carry
// no measurable value (commands, system requests).
func extractValue(obj asdu104.InformationObject) (value float64, quality asdu104.Quality, ok bool) {
	switch o := obj.(type) {
	case asdu104.SinglePoint:
		return boolToFloat(o.Value), o.Quality, true
	case asdu104.DoublePoint:
		return float64(o.Value), o.Quality, true
	case asdu104.StepPosition:
		return float64(o.Value), o.Quality, true
	case asdu104.Bitstring32:
		return float64(o.Value), o.Quality, true
	case asdu104.MeasuredNormalized:
		return o.Normalized(), o.Quality, true
	case asdu104.MeasuredScaled:
		return float64(o.Value), o.Quality, true
	case asdu104.MeasuredFloat:
		return float64(o.Value), o.Quality, true
	case asdu104.IntegratedTotals:
		return float64(o.Counter.Value), asdu104.QualityGood, true
	case asdu104.PackedSinglePointStatus:
		return float64(o.Status), o.Quality, true
	case asdu104.ProtectionEvent:
		return float64(o.Value), o.Quality, true
	default:
		return 0, asdu104.QualityGood, false
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
