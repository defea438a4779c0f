package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), rdb
}

func TestAddGetDeleteDevice(t *testing.T) {
	ctx := context.Background()
	store, rdb := newTestStore(t)

	sub := store.Subscribe(ctx, ChannelDeviceAdd)
	defer sub.Close()

	d := Device{ID: 1, Name: "substation-1", IP: "10.0.0.1", Port: 2404, Status: "off", Protocol: "iec104"}
	require.NoError(t, store.AddDevice(ctx, d))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "HS:DEVICE:1", msg.Payload)

	got, err := store.GetDevice(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, d, got)

	isMember, err := rdb.SIsMember(ctx, setDeviceKey, 1).Result()
	require.NoError(t, err)
	require.True(t, isMember)

	require.NoError(t, store.DeleteDevice(ctx, 1))
	_, err = store.GetDevice(ctx, 1)
	require.ErrorIs(t, err, redis.Nil)
}

func TestTermAndTermItemLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddDevice(ctx, Device{ID: 1, Name: "dev"}))
	require.NoError(t, store.AddTerm(ctx, Terminal{ID: 10, Name: "feeder-1", DeviceID: 1}))

	terms, err := store.ListDeviceTerms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	require.Equal(t, int64(10), terms[0].ID)

	ti := TermItem{ID: 100, TermID: 10, ItemID: 200, ProtocolCode: "1001", BaseVal: 0, Coefficient: 1}
	require.NoError(t, store.AddTermItem(ctx, "iec104", 1, ti))

	found, ok, err := store.FindByProtocolCode(ctx, "iec104", 1, "1001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10), found.TermID)
	require.Equal(t, int64(200), found.ItemID)

	require.NoError(t, store.DeleteTerm(ctx, 1, 10))
	_, ok, err = store.FindByProtocolCode(ctx, "iec104", 1, "1001")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveDataAndFrameLog(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveData(ctx, 1, 10, 200, now, "42.5"))
	require.NoError(t, store.AppendFrameLog(ctx, 1, DirectionRecv, now, []byte{0x68, 0x04, 0x07, 0x00, 0x00, 0x00}))
}

func TestFindByProtocolCodeMissing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, ok, err := store.FindByProtocolCode(ctx, "iec104", 1, "nope")
	require.NoError(t, err)
	require.False(t, ok)
}
