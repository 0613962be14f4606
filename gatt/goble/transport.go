// Package goble implements gatt.Transport on a go-ble/ble central.
//
// The platform HCI device is created by the caller, which keeps this package
// free of build tags:
//
//	dev, err := linux.NewDevice()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	transport := goble.New(dev, goble.WithLogger(logger))
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moffa90/go-nrfdfu/gatt"
)

// NotificationBuffer is the number of notifications queued before the oldest
// is dropped.
const NotificationBuffer = 256

// DisconnectTimeout bounds how long Disconnect waits for the controller to
// report the link down.
const DisconnectTimeout = 2 * time.Second

// Device is the part of ble.Device used to find and connect peripherals.
type Device interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger logs connection events to l.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithDisconnectTimeout sets how long Disconnect waits for the link to go
// down. Non-positive values keep DisconnectTimeout.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.teardown = d
		}
	}
}

// WithMTU requests an ATT MTU after connecting. Peers that refuse keep the
// default of 23.
func WithMTU(mtu int) Option {
	return func(t *Transport) {
		t.mtu = mtu
	}
}

// Transport is a single-link GATT client.
type Transport struct {
	dev Device
	log *zap.Logger
	mtu int

	teardown time.Duration

	mu      sync.Mutex
	client  ble.Client
	chars   []*ble.Characteristic
	notifCh chan gatt.Notification
	dropped int
}

var _ gatt.Transport = (*Transport)(nil)

// New creates a transport on dev.
func New(dev Device, opts ...Option) *Transport {
	t := &Transport{
		dev:      dev,
		log:      zap.NewNop(),
		teardown: DisconnectTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect scans for addr, dials it and discovers its attribute table.
// The scan yields the platform address object, which carries the random or
// public address type on Linux and the peripheral identifier on macOS.
func (t *Transport) Connect(ctx context.Context, addr gatt.Address, typ gatt.AddressType) error {
	t.mu.Lock()
	busy := t.client != nil
	t.mu.Unlock()
	if busy {
		return errors.New("goble: already connected")
	}

	log := t.log.With(zap.Stringer("addr", addr), zap.Stringer("type", typ))

	peer, err := t.find(ctx, addr)
	if err != nil {
		return err
	}

	log.Debug("dialing")
	client, err := t.dev.Dial(ctx, peer)
	if err != nil {
		return wrapContext(ctx, fmt.Errorf("dial %s: %w", addr, err))
	}

	if t.mtu > 0 {
		if got, err := client.ExchangeMTU(t.mtu); err != nil {
			log.Debug("mtu exchange refused", zap.Error(err))
		} else {
			log.Debug("mtu exchanged", zap.Int("mtu", got))
		}
	}

	profile, err := call(ctx, func() (*ble.Profile, error) { return client.DiscoverProfile(true) })
	if err != nil {
		_ = client.CancelConnection()
		return fmt.Errorf("discover profile: %w", err)
	}

	var chars []*ble.Characteristic
	for _, s := range profile.Services {
		chars = append(chars, s.Characteristics...)
	}

	t.mu.Lock()
	t.client = client
	t.chars = chars
	t.notifCh = make(chan gatt.Notification, NotificationBuffer)
	t.dropped = 0
	t.mu.Unlock()

	log.Info("connected", zap.Int("characteristics", len(chars)))
	return nil
}

// find scans until a peripheral advertising from addr is seen.
func (t *Transport) find(ctx context.Context, addr gatt.Address) (ble.Addr, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan ble.Addr, 1)
	want := addr.String()

	err := t.dev.Scan(scanCtx, false, func(a ble.Advertisement) {
		if !strings.EqualFold(a.Addr().String(), want) {
			return
		}
		select {
		case found <- a.Addr():
			cancel()
		default:
		}
	})

	select {
	case peer := <-found:
		return peer, nil
	default:
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("scan for %s: %w", addr, gatt.ErrTimeout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("scan for %s: %w", addr, err)
	}
	return nil, fmt.Errorf("scan for %s: %w", addr, gatt.ErrTimeout)
}

// Disconnect cancels the connection and waits until the link is down, so the
// next Connect does not race the old link's teardown. It is a no-op without a
// link.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.chars = nil
	dropped := t.dropped
	t.mu.Unlock()

	if client == nil {
		return nil
	}

	if dropped > 0 {
		t.log.Warn("notifications dropped", zap.Int("count", dropped))
	}

	select {
	case <-client.Disconnected():
		return nil
	default:
	}

	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("cancel connection: %w", err)
	}

	timer := time.NewTimer(t.teardown)
	defer timer.Stop()

	select {
	case <-client.Disconnected():
		t.log.Info("disconnected")
		return nil
	case <-timer.C:
		t.log.Warn("link still up after cancel", zap.Duration("waited", t.teardown))
		return fmt.Errorf("disconnect: %w", gatt.ErrTimeout)
	}
}

// ResolveCharacteristic finds id in the discovered profile.
func (t *Transport) ResolveCharacteristic(ctx context.Context, id uuid.UUID) (gatt.Handles, error) {
	if _, err := t.live(); err != nil {
		return gatt.Handles{}, err
	}

	want, err := ble.Parse(id.String())
	if err != nil {
		return gatt.Handles{}, fmt.Errorf("uuid %s: %w", id, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.chars {
		if c.UUID.Equal(want) {
			return gatt.HandlesAt(c.Handle, c.ValueHandle), nil
		}
	}
	return gatt.Handles{}, fmt.Errorf("characteristic %s: %w", id, gatt.ErrNotFound)
}

// WriteRequest writes with response.
func (t *Transport) WriteRequest(ctx context.Context, handle uint16, value []byte) error {
	client, c, err := t.characteristic(handle)
	if err != nil {
		return err
	}
	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, client.WriteCharacteristic(c, value, false)
	})
	return err
}

// WriteCommand writes without response.
func (t *Transport) WriteCommand(handle uint16, value []byte) error {
	client, c, err := t.characteristic(handle)
	if err != nil {
		return err
	}
	return client.WriteCharacteristic(c, value, true)
}

// Subscribe enables notifications or indications on the characteristic whose
// CCCD is cccd. Incoming values are queued for AwaitNotification.
func (t *Transport) Subscribe(ctx context.Context, cccd uint16, mode gatt.SubscribeMode) error {
	client, c, err := t.characteristic(cccd - 1)
	if err != nil {
		return err
	}

	t.mu.Lock()
	ch := t.notifCh
	t.mu.Unlock()

	handle := c.ValueHandle
	handler := func(value []byte) {
		n := gatt.Notification{Handle: handle, Value: append([]byte(nil), value...)}
		select {
		case ch <- n:
			return
		default:
		}
		// Full: drop the oldest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- n:
		default:
		}
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
	}

	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, client.Subscribe(c, mode == gatt.Indicate, handler)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", mode, err)
	}
	return nil
}

// AwaitNotification returns the next queued notification.
func (t *Transport) AwaitNotification(ctx context.Context) (gatt.Notification, error) {
	client, err := t.live()
	if err != nil {
		return gatt.Notification{}, err
	}

	t.mu.Lock()
	ch := t.notifCh
	t.mu.Unlock()

	select {
	case n := <-ch:
		return n, nil
	case <-client.Disconnected():
		return gatt.Notification{}, gatt.ErrNotConnected
	case <-ctx.Done():
		return gatt.Notification{}, fmt.Errorf("await notification: %w", gatt.ErrTimeout)
	}
}

// IsAlive reports whether the peer is still connected.
func (t *Transport) IsAlive() bool {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return false
	}
	select {
	case <-client.Disconnected():
		return false
	default:
		return true
	}
}

func (t *Transport) live() (ble.Client, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return nil, gatt.ErrNotConnected
	}
	select {
	case <-client.Disconnected():
		return nil, gatt.ErrNotConnected
	default:
		return client, nil
	}
}

// characteristic maps a value handle to its discovered characteristic.
func (t *Transport) characteristic(valueHandle uint16) (ble.Client, *ble.Characteristic, error) {
	client, err := t.live()
	if err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.chars {
		if c.ValueHandle == valueHandle {
			return client, c, nil
		}
	}
	return nil, nil, fmt.Errorf("handle 0x%04X: %w", valueHandle, gatt.ErrNotFound)
}

// call runs a blocking go-ble operation and gives up when ctx expires.
// The operation keeps running in the background until the stack returns.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", gatt.ErrTimeout, ctx.Err())
	}
}

func wrapContext(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", gatt.ErrTimeout, err)
	}
	return err
}
