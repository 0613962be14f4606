package trace

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/gatt/gatttest"
	"github.com/moffa90/go-nrfdfu/protocol"
)

var base = gatt.MustParseAddress("C1:02:03:04:05:06")

func TestEventRoundTrip(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC),
		SessionID: uuid.NewString(),
		Direction: DirectionIn,
		Kind:      KindNotification,
		Handle:    0x0011,
		Value:     []byte{0x10, 0x01, 0x01},
		Duration:  3 * time.Millisecond,
	}

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
	got.Timestamp = event.Timestamp
	assert.Equal(t, event, got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "connect", KindConnect.String())
	assert.Equal(t, "write-cmd", KindWriteCommand.String())
	assert.Equal(t, "notify", KindNotification.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Equal(t, "IN", DirectionIn.String())
}

func TestEventString(t *testing.T) {
	line := Event{Kind: KindWriteRequest, Handle: 0x11, Value: []byte{0x01, 0x04}, Error: "gatt: timeout"}.String()
	assert.Contains(t, line, "write-req")
	assert.Contains(t, line, "handle=0x0011")
	assert.Contains(t, line, "value=01 04")
	assert.Contains(t, line, `error="gatt: timeout"`)
}

func TestTransportRecordsTraffic(t *testing.T) {
	ctx := context.Background()
	dev := gatttest.New(gatttest.Secure, base, gatttest.InBootloader())
	rec := &MemoryRecorder{}
	tr := Wrap(dev, rec)

	require.NoError(t, tr.Connect(ctx, base.Add(1), gatt.AddressRandom))
	control, err := tr.ResolveCharacteristic(ctx, protocol.SecureControlPointUUID)
	require.NoError(t, err)
	pkt, err := tr.ResolveCharacteristic(ctx, protocol.SecurePacketUUID)
	require.NoError(t, err)
	require.NoError(t, tr.Subscribe(ctx, control.CCCD, gatt.Notify))
	require.NoError(t, tr.WriteRequest(ctx, control.Value, protocol.Encode(protocol.StartDFU(protocol.ImageTypeApplication))))

	size := protocol.ImageSizeBlock(0, 0, 1024)
	require.NoError(t, tr.WriteCommand(pkt.Value, size))

	n, err := tr.AwaitNotification(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Disconnect())
	assert.False(t, dev.Connected())

	events := rec.Events()
	kinds := make([]Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
		assert.Equal(t, tr.SessionID(), e.SessionID)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, []Kind{
		KindConnect, KindResolve, KindResolve, KindSubscribe,
		KindWriteRequest, KindWriteCommand, KindNotification, KindDisconnect,
	}, kinds)

	assert.Equal(t, base.Add(1).String(), events[0].Address)
	assert.Equal(t, protocol.SecureControlPointUUID.String(), events[1].UUID)
	assert.Equal(t, gatt.Notify.CCCDValue(), events[3].Value)
	assert.Equal(t, size, events[5].Value)
	assert.Equal(t, DirectionIn, events[6].Direction)
	assert.Equal(t, n.Value, events[6].Value)
}

func TestTransportRecordsErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	rec := &MemoryRecorder{}
	tr := Wrap(gatttest.New(gatttest.Secure, base), rec)

	err := tr.Connect(ctx, base.Add(1), gatt.AddressRandom)
	require.Error(t, err)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, err.Error(), events[0].Error)
}

func TestWrapNilRecorder(t *testing.T) {
	tr := Wrap(gatttest.New(gatttest.Legacy, base), nil)
	require.NoError(t, tr.Connect(context.Background(), base, gatt.AddressRandom))
	assert.True(t, tr.IsAlive())
	assert.NotEmpty(t, tr.SessionID())
}

func TestFileRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.trace")

	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec.Record(Event{Kind: KindWriteCommand, Handle: uint16(i + 1)})
		}(i)
	}
	wg.Wait()

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(Event{Kind: KindDisconnect})

	events, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, events, 20)
	for _, e := range events {
		assert.Equal(t, KindWriteCommand, e.Kind)
	}
}

func TestFileRecorderAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.trace")

	for i := 0; i < 2; i++ {
		rec, err := NewFileRecorder(path)
		require.NoError(t, err)
		rec.Record(Event{Kind: KindConnect})
		require.NoError(t, rec.Close())
	}

	events, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestDecodeTruncated(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Event{Kind: KindConnect}))
	require.NoError(t, enc.Encode(Event{Kind: KindDisconnect}))

	data := buf.Bytes()
	events, err := Decode(bytes.NewReader(data[:len(data)-1]))
	assert.Error(t, err)
	assert.Len(t, events, 1)
}
