// Package gateway bridges synchronous control-plane requests (the HTTP
// device_call/device_ctrl endpoints) to the asynchronous device actor
// protocol, by way of the inventory store's pub/sub bus: it validates the
// request, publishes it on the broadcast channel the supervisor listens
// on, and waits for the supervisor to publish a reply on the request's
// point-specific result channel.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redis/go-redis/v9"

	"github.com/yobol/iec104collector/internal/inventory"
)

// DefaultTimeout matches the original's HANDLER_TIME_OUT default of 10s.
const DefaultTimeout = 10 * time.Second

// Gateway is stateless beyond its store handle and configured timeout; it
// can run in the same process as the supervisor or in a separate one, the
// two communicating only through Redis.
type Gateway struct {
	store   *inventory.Store
	timeout time.Duration
	log     *logrus.Entry
}

// New builds a Gateway. A zero timeout is replaced by DefaultTimeout.
func New(store *inventory.Store, timeout time.Duration, log *logrus.Entry) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gateway{store: store, timeout: timeout, log: log.WithField("component", "gateway")}
}

type callRequest struct {
	DeviceID int64 `json:"device_id"`
	TermID   int64 `json:"term_id"`
	ItemID   int64 `json:"item_id"`
}

type ctrlRequest struct {
	DeviceID int64   `json:"device_id"`
	TermID   int64   `json:"term_id"`
	ItemID   int64   `json:"item_id"`
	Value    float64 `json:"value"`
}

// Call performs an on-demand read of one point, the "招测" operation.
func (g *Gateway) Call(ctx context.Context, deviceID, termID, itemID int64) (json.RawMessage, error) {
	if err := g.validate(ctx, deviceID, termID, itemID); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(callRequest{DeviceID: deviceID, TermID: termID, ItemID: itemID})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode call request: %w", err)
	}
	return g.roundTrip(ctx, inventory.ChannelDeviceCall, inventory.ChannelDeviceCallResult(deviceID, termID, itemID), payload)
}

// Ctrl performs a select-and-execute command against one point, the
// "控制" operation.
func (g *Gateway) Ctrl(ctx context.Context, deviceID, termID, itemID int64, value float64) (json.RawMessage, error) {
	if err := g.validate(ctx, deviceID, termID, itemID); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(ctrlRequest{DeviceID: deviceID, TermID: termID, ItemID: itemID, Value: value})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode ctrl request: %w", err)
	}
	return g.roundTrip(ctx, inventory.ChannelDeviceCtrl, inventory.ChannelDeviceCtrlResult(deviceID, termID, itemID), payload)
}

// validate confirms the device, terminal, item and their binding all
// exist, the existence chain the original's device_call/device_ctrl
// handlers check before publishing.
func (g *Gateway) validate(ctx context.Context, deviceID, termID, itemID int64) error {
	if _, err := g.store.GetDevice(ctx, deviceID); err != nil {
		return notFoundOr(err, "device")
	}
	if _, err := g.store.GetTerm(ctx, termID); err != nil {
		return notFoundOr(err, "terminal")
	}
	if _, err := g.store.GetItem(ctx, itemID); err != nil {
		return notFoundOr(err, "item")
	}
	if _, err := g.store.GetTermItem(ctx, termID, itemID); err != nil {
		return notFoundOr(err, "term_item binding")
	}
	return nil
}

func notFoundOr(err error, what string) error {
	if err == redis.Nil {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("gateway: validate %s: %w", what, err)
}

// roundTrip implements the five-step pattern: subscribe to the reply
// channel, publish the request, await one message bounded by g.timeout,
// then unsubscribe.
func (g *Gateway) roundTrip(ctx context.Context, broadcastChannel, replyChannel string, payload []byte) (json.RawMessage, error) {
	sub := g.store.Subscribe(ctx, replyChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("gateway: subscribe to %s: %w", replyChannel, err)
	}

	if err := g.store.Publish(ctx, broadcastChannel, string(payload)); err != nil {
		return nil, fmt.Errorf("gateway: publish request: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := sub.ReceiveMessage(waitCtx)
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("gateway: await reply: %w", err)
	}
	return json.RawMessage(msg.Payload), nil
}
