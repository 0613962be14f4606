package trace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-nrfdfu/gatt"
)

// Transport is a gatt.Transport that records every operation of the
// transport it wraps.
type Transport struct {
	inner     gatt.Transport
	rec       Recorder
	sessionID string
	now       func() time.Time
}

var _ gatt.Transport = (*Transport)(nil)

// Wrap decorates inner. A nil recorder records nothing.
func Wrap(inner gatt.Transport, rec Recorder) *Transport {
	if rec == nil {
		rec = NoopRecorder{}
	}
	return &Transport{
		inner:     inner,
		rec:       rec,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// SessionID returns the UUID stamped on every event.
func (t *Transport) SessionID() string {
	return t.sessionID
}

func (t *Transport) record(start time.Time, event Event, err error) {
	event.Timestamp = start
	event.SessionID = t.sessionID
	event.Duration = t.now().Sub(start)
	if err != nil {
		event.Error = err.Error()
	}
	t.rec.Record(event)
}

// Connect implements gatt.Transport.
func (t *Transport) Connect(ctx context.Context, addr gatt.Address, typ gatt.AddressType) error {
	start := t.now()
	err := t.inner.Connect(ctx, addr, typ)
	t.record(start, Event{Direction: DirectionOut, Kind: KindConnect, Address: addr.String()}, err)
	return err
}

// Disconnect implements gatt.Transport.
func (t *Transport) Disconnect() error {
	start := t.now()
	err := t.inner.Disconnect()
	t.record(start, Event{Direction: DirectionOut, Kind: KindDisconnect}, err)
	return err
}

// ResolveCharacteristic implements gatt.Transport.
func (t *Transport) ResolveCharacteristic(ctx context.Context, id uuid.UUID) (gatt.Handles, error) {
	start := t.now()
	h, err := t.inner.ResolveCharacteristic(ctx, id)
	t.record(start, Event{Direction: DirectionOut, Kind: KindResolve, UUID: id.String(), Handle: h.Value}, err)
	return h, err
}

// WriteRequest implements gatt.Transport.
func (t *Transport) WriteRequest(ctx context.Context, handle uint16, value []byte) error {
	start := t.now()
	err := t.inner.WriteRequest(ctx, handle, value)
	t.record(start, Event{Direction: DirectionOut, Kind: KindWriteRequest, Handle: handle, Value: clone(value)}, err)
	return err
}

// WriteCommand implements gatt.Transport.
func (t *Transport) WriteCommand(handle uint16, value []byte) error {
	start := t.now()
	err := t.inner.WriteCommand(handle, value)
	t.record(start, Event{Direction: DirectionOut, Kind: KindWriteCommand, Handle: handle, Value: clone(value)}, err)
	return err
}

// Subscribe implements gatt.Transport.
func (t *Transport) Subscribe(ctx context.Context, cccd uint16, mode gatt.SubscribeMode) error {
	start := t.now()
	err := t.inner.Subscribe(ctx, cccd, mode)
	t.record(start, Event{Direction: DirectionOut, Kind: KindSubscribe, Handle: cccd, Value: mode.CCCDValue()}, err)
	return err
}

// AwaitNotification implements gatt.Transport.
func (t *Transport) AwaitNotification(ctx context.Context) (gatt.Notification, error) {
	start := t.now()
	n, err := t.inner.AwaitNotification(ctx)
	t.record(start, Event{Direction: DirectionIn, Kind: KindNotification, Handle: n.Handle, Value: clone(n.Value)}, err)
	return n, err
}

// IsAlive implements gatt.Transport. Liveness probes are not recorded.
func (t *Transport) IsAlive() bool {
	return t.inner.IsAlive()
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
