// Package gatttest provides an in-memory nRF51 peripheral implementing
// gatt.Transport, for tests and demonstrations without a radio.
//
// The simulated device runs either its application firmware or the SDK 11
// DFU bootloader. Application firmware exposes the entry mechanism of its
// Kind; the bootloader implements START, INIT, RECEIVE with packet receipt
// notifications, VALIDATE and ACTIVATE, and reboots back into the
// application with the received image.
package gatttest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/protocol"
)

// Kind selects the firmware family of the simulated device.
type Kind int

const (
	// Legacy devices expose the SDK 11 control point in the application and
	// keep their address in the bootloader.
	Legacy Kind = iota

	// Secure devices expose the buttonless characteristic and advertise the
	// bootloader at address+1.
	Secure

	// Ruuvitag devices behave like Secure ones, but only expose the
	// buttonless characteristic after their device ID has been written.
	Ruuvitag
)

// Mode is the firmware the simulated device is running.
type Mode int

const (
	ModeApplication Mode = iota
	ModeBootloader
)

func (m Mode) String() string {
	if m == ModeBootloader {
		return "bootloader"
	}
	return "application"
}

// DefaultCapacity is the largest application image the bootloader accepts.
const DefaultCapacity = 256 * 1024

type role int

const (
	roleNone role = iota
	roleControl
	rolePacket
	roleUARTRX
	roleUARTTX
	roleButtonless
)

// layout is the fixed attribute table. Each role keeps its handles across
// firmware images.
var layout = map[role]gatt.Handles{
	roleControl:    gatt.HandlesAt(0x0010, 0x0011),
	rolePacket:     gatt.HandlesAt(0x0013, 0x0014),
	roleUARTRX:     gatt.HandlesAt(0x0020, 0x0021),
	roleUARTTX:     gatt.HandlesAt(0x0023, 0x0024),
	roleButtonless: gatt.HandlesAt(0x0030, 0x0031),
}

var errCCCDNotConfigured = errors.New("gatttest: CCCD improperly configured")

type bootState int

const (
	bootIdle bootState = iota
	bootAwaitSize
	bootInit
	bootImage
	bootImageDone
)

// Write is one recorded GATT write.
type Write struct {
	Handle  uint16
	Value   []byte
	Request bool
}

type link struct {
	notes chan gatt.Notification
	alive bool
	subs  map[uint16]gatt.SubscribeMode
}

// Option configures a Device.
type Option func(*Device)

// InBootloader starts the device in bootloader mode.
func InBootloader() Option {
	return func(d *Device) {
		d.mode = ModeBootloader
	}
}

// WithDeviceID sets the identifier a Ruuvitag device accepts.
func WithDeviceID(id []byte) Option {
	return func(d *Device) {
		d.deviceID = append([]byte(nil), id...)
	}
}

// Device is a simulated nRF51 peripheral. It holds at most one connection.
//
// The exported fault fields must be set before the device is first used.
type Device struct {
	// NoAck lists control point opcodes whose write request is never
	// acknowledged; the write blocks until its context ends.
	NoAck map[byte]bool

	// NoResponse lists opcodes that are acknowledged but never answered.
	NoResponse map[byte]bool

	// Reject answers the listed opcodes with the given status.
	Reject map[byte]byte

	// ReceiptSkew is added to every reported receipt offset.
	ReceiptSkew int

	// ReceiptCRC appends the running CRC32 to receipts.
	ReceiptCRC bool

	// DropAfterPackets drops the link after that many image packets (0 disables).
	DropAfterPackets int

	// ConnectFailures fails that many connection attempts with a timeout.
	ConnectFailures int

	// Hide lists characteristics the device never exposes.
	Hide []uuid.UUID

	// Capacity is the largest image the bootloader accepts.
	Capacity int

	mu         sync.Mutex
	kind       Kind
	base       gatt.Address
	mode       Mode
	deviceID   []byte
	idAccepted bool
	link       *link

	state      bootState
	prn        int
	imageSize  uint32
	initPacket []byte
	image      []byte
	packets    int
	validated  bool
	firmware   []byte

	connects    int
	disconnects int
	awaits      int
	writes      []Write
}

var _ gatt.Transport = (*Device)(nil)

// New creates a device of the given kind whose application advertises at base.
//
// Example:
//
//	dev := gatttest.New(gatttest.Secure, gatt.MustParseAddress("C1:02:03:04:05:06"))
//	sess := dfu.NewSession(dev, dev.Base(), dfu.Secure{})
func New(kind Kind, base gatt.Address, opts ...Option) *Device {
	d := &Device{
		kind:     kind,
		base:     base,
		Capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Base returns the application address.
func (d *Device) Base() gatt.Address {
	return d.base
}

// Address returns the address the device currently advertises at.
func (d *Device) Address() gatt.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address()
}

func (d *Device) address() gatt.Address {
	if d.mode == ModeBootloader && d.kind != Legacy {
		return d.base.Add(1)
	}
	return d.base
}

// Connect implements gatt.Transport. Only the current advertising address is reachable.
func (d *Device) Connect(ctx context.Context, addr gatt.Address, typ gatt.AddressType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if d.link != nil {
		return fmt.Errorf("gatttest: connect %s: already connected", addr)
	}
	if d.ConnectFailures > 0 {
		d.ConnectFailures--
		return fmt.Errorf("connect %s: %w", addr, gatt.ErrTimeout)
	}
	if addr != d.address() {
		return fmt.Errorf("connect %s: %w", addr, gatt.ErrTimeout)
	}

	d.connects++
	d.link = &link{
		notes: make(chan gatt.Notification, 256),
		alive: true,
		subs:  make(map[uint16]gatt.SubscribeMode),
	}
	return nil
}

// Disconnect implements gatt.Transport.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.disconnects++
	if d.link != nil {
		d.link.alive = false
		d.link = nil
	}
	return nil
}

// ResolveCharacteristic implements gatt.Transport.
func (d *Device) ResolveCharacteristic(ctx context.Context, id uuid.UUID) (gatt.Handles, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.live(); err != nil {
		return gatt.Handles{}, err
	}
	for r, u := range d.exposed() {
		if u == id {
			return layout[r], nil
		}
	}
	return gatt.Handles{}, fmt.Errorf("characteristic %s: %w", id, gatt.ErrNotFound)
}

// WriteRequest implements gatt.Transport.
func (d *Device) WriteRequest(ctx context.Context, handle uint16, value []byte) error {
	d.mu.Lock()
	l, err := d.live()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.record(handle, value, true)
	r := d.roleOf(handle)

	if r == roleControl && d.mode == ModeBootloader && len(value) > 0 && d.NoAck[value[0]] {
		d.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer d.mu.Unlock()

	switch {
	case r == roleNone:
		return fmt.Errorf("write handle 0x%04X: %w", handle, gatt.ErrNotFound)
	case r == roleControl && d.mode == ModeBootloader:
		if len(value) == 0 {
			return errors.New("gatttest: empty control point write")
		}
		d.control(l, value[0], value[1:])
	case r == roleControl:
		// Legacy application: START_DFU for an application image reboots into the bootloader.
		if bytes.Equal(value, protocol.Encode(protocol.StartDFU(protocol.ImageTypeApplication))) {
			d.reboot(ModeBootloader)
		}
	case r == roleButtonless:
		if l.subs[layout[roleButtonless].CCCD] != gatt.Indicate {
			return errCCCDNotConfigured
		}
		if len(value) == 1 && value[0] == protocol.ButtonlessEnterBootloader {
			d.notify(l, roleButtonless, []byte{protocol.ButtonlessResponse, value[0], protocol.StatusSuccess})
			d.reboot(ModeBootloader)
		} else {
			d.notify(l, roleButtonless, []byte{protocol.ButtonlessResponse, value[0], protocol.StatusInvalidState})
		}
	case r == roleUARTRX && d.kind == Ruuvitag:
		tag := protocol.RuuvitagIDTag
		if bytes.HasPrefix(value, tag) && bytes.Equal(value[len(tag):], d.deviceID) {
			d.idAccepted = true
			d.reboot(ModeApplication)
		}
	}
	return nil
}

// WriteCommand implements gatt.Transport.
func (d *Device) WriteCommand(handle uint16, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, err := d.live()
	if err != nil {
		return err
	}
	d.record(handle, value, false)

	switch r := d.roleOf(handle); {
	case r == roleNone:
		return fmt.Errorf("write handle 0x%04X: %w", handle, gatt.ErrNotFound)
	case r == rolePacket && d.mode == ModeBootloader:
		d.packet(l, value)
	}
	return nil
}

// Subscribe implements gatt.Transport.
func (d *Device) Subscribe(ctx context.Context, cccd uint16, mode gatt.SubscribeMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, err := d.live()
	if err != nil {
		return err
	}
	d.record(cccd, mode.CCCDValue(), true)

	for r := range d.exposed() {
		if layout[r].CCCD == cccd {
			l.subs[cccd] = mode
			return nil
		}
	}
	return fmt.Errorf("cccd 0x%04X: %w", cccd, gatt.ErrNotFound)
}

// AwaitNotification implements gatt.Transport. Queued notifications are still
// delivered after the link drops.
func (d *Device) AwaitNotification(ctx context.Context) (gatt.Notification, error) {
	d.mu.Lock()
	d.awaits++
	l := d.link
	d.mu.Unlock()

	if l == nil {
		return gatt.Notification{}, gatt.ErrNotConnected
	}

	select {
	case n := <-l.notes:
		return n, nil
	case <-ctx.Done():
		return gatt.Notification{}, ctx.Err()
	}
}

// IsAlive implements gatt.Transport.
func (d *Device) IsAlive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.link != nil && d.link.alive
}

// Mode returns the firmware currently running.
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Connects returns the number of successful connections.
func (d *Device) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Disconnects returns the number of Disconnect calls.
func (d *Device) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// Connected reports whether a connection is held, alive or dropped.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.link != nil
}

// Awaits returns the number of AwaitNotification calls.
func (d *Device) Awaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.awaits
}

// Writes returns every write in order, subscriptions included.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// ControlOpcodes returns the opcodes written to the control point while in
// bootloader mode, in order.
func (d *Device) ControlOpcodes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ops []byte
	for _, w := range d.writes {
		if w.Handle == layout[roleControl].Value && w.Request && len(w.Value) > 0 {
			ops = append(ops, w.Value[0])
		}
	}
	return ops
}

// PacketWrites returns the number of writes to the packet characteristic.
func (d *Device) PacketWrites() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, w := range d.writes {
		if w.Handle == layout[rolePacket].Value {
			n++
		}
	}
	return n
}

// Firmware returns the image activated by the last successful update.
func (d *Device) Firmware() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.firmware...)
}

// InitPacket returns the last init packet received by the bootloader.
func (d *Device) InitPacket() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.initPacket...)
}

// ReceiptInterval returns the interval requested by the client.
func (d *Device) ReceiptInterval() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prn
}

// live returns the current link if it is up. Callers hold d.mu.
func (d *Device) live() (*link, error) {
	if d.link == nil || !d.link.alive {
		return nil, gatt.ErrNotConnected
	}
	return d.link, nil
}

// exposed maps each role visible in the current mode to its UUID.
func (d *Device) exposed() map[role]uuid.UUID {
	chars := make(map[role]uuid.UUID)

	switch {
	case d.mode == ModeBootloader && d.kind == Legacy:
		chars[roleControl] = protocol.LegacyControlPointUUID
		chars[rolePacket] = protocol.LegacyPacketUUID
	case d.mode == ModeBootloader:
		chars[roleControl] = protocol.SecureControlPointUUID
		chars[rolePacket] = protocol.SecurePacketUUID
	default:
		chars[roleUARTRX] = protocol.UARTRXUUID
		chars[roleUARTTX] = protocol.UARTTXUUID
		switch d.kind {
		case Legacy:
			chars[roleControl] = protocol.LegacyControlPointUUID
		case Secure:
			chars[roleButtonless] = protocol.ButtonlessUUID
		case Ruuvitag:
			if d.idAccepted {
				chars[roleButtonless] = protocol.ButtonlessUUID
			}
		}
	}

	for _, hidden := range d.Hide {
		for r, u := range chars {
			if u == hidden {
				delete(chars, r)
			}
		}
	}
	return chars
}

func (d *Device) roleOf(handle uint16) role {
	for r := range d.exposed() {
		if layout[r].Value == handle {
			return r
		}
	}
	return roleNone
}

func (d *Device) record(handle uint16, value []byte, request bool) {
	d.writes = append(d.writes, Write{
		Handle:  handle,
		Value:   append([]byte(nil), value...),
		Request: request,
	})
}

// notify queues a notification if the client subscribed to the role's CCCD.
func (d *Device) notify(l *link, r role, value []byte) {
	h := layout[r]
	if _, ok := l.subs[h.CCCD]; !ok {
		return
	}
	select {
	case l.notes <- gatt.Notification{Handle: h.Value, Value: value}:
	default:
	}
}

// reboot drops the link and restarts into mode. Entering the bootloader
// clears any unfinished update.
func (d *Device) reboot(mode Mode) {
	if d.link != nil {
		d.link.alive = false
	}
	d.mode = mode
	if mode != ModeBootloader {
		return
	}
	d.state = bootIdle
	d.prn = 0
	d.imageSize = 0
	d.image = nil
	d.packets = 0
	d.validated = false
}

func (d *Device) respond(l *link, op, status byte) {
	if d.NoResponse[op] {
		return
	}
	if s, ok := d.Reject[op]; ok {
		status = s
	}
	d.notify(l, roleControl, protocol.EncodeResponse(op, status))
}

// control runs one bootloader control point command.
func (d *Device) control(l *link, op byte, params []byte) {
	switch op {
	case protocol.OpStartDFU:
		if len(params) != 1 || params[0] != protocol.ImageTypeApplication {
			d.respond(l, op, protocol.StatusNotSupported)
			return
		}
		d.state = bootAwaitSize

	case protocol.OpInitDFUParams:
		if len(params) != 1 {
			d.respond(l, op, protocol.StatusNotSupported)
			return
		}
		switch params[0] {
		case protocol.InitReceive:
			d.state = bootInit
			d.initPacket = nil
		case protocol.InitComplete:
			switch {
			case d.state != bootInit:
				d.respond(l, op, protocol.StatusInvalidState)
			case len(d.initPacket) == 0:
				d.respond(l, op, protocol.StatusOperationFailed)
			default:
				d.state = bootIdle
				d.respond(l, op, protocol.StatusSuccess)
			}
		default:
			d.respond(l, op, protocol.StatusNotSupported)
		}

	case protocol.OpPacketReceiptNotifRequest:
		if len(params) == 2 {
			d.prn = int(binary.LittleEndian.Uint16(params))
		}

	case protocol.OpReceiveFirmwareImage:
		if d.imageSize == 0 {
			d.respond(l, op, protocol.StatusInvalidState)
			return
		}
		d.state = bootImage
		d.image = nil
		d.packets = 0

	case protocol.OpValidateFirmwareImage:
		if d.state != bootImageDone || uint32(len(d.image)) != d.imageSize {
			d.respond(l, op, protocol.StatusCRCError)
			return
		}
		d.validated = true
		d.respond(l, op, protocol.StatusSuccess)

	case protocol.OpActivateAndReset:
		if !d.validated {
			d.respond(l, op, protocol.StatusInvalidState)
			return
		}
		d.firmware = append([]byte(nil), d.image...)
		d.reboot(ModeApplication)

	case protocol.OpSystemReset:
		d.reboot(d.mode)

	default:
		d.respond(l, op, protocol.StatusNotSupported)
	}
}

// packet consumes one write on the packet characteristic.
func (d *Device) packet(l *link, value []byte) {
	switch d.state {
	case bootAwaitSize:
		d.state = bootIdle
		if len(value) != protocol.ImageSizeBlockSize {
			d.respond(l, protocol.OpStartDFU, protocol.StatusNotSupported)
			return
		}
		sd := binary.LittleEndian.Uint32(value[0:4])
		bl := binary.LittleEndian.Uint32(value[4:8])
		app := binary.LittleEndian.Uint32(value[8:12])
		switch {
		case sd != 0 || bl != 0 || app == 0:
			d.respond(l, protocol.OpStartDFU, protocol.StatusNotSupported)
		case int(app) > d.Capacity:
			d.respond(l, protocol.OpStartDFU, protocol.StatusDataSizeExceedsLimit)
		default:
			d.imageSize = app
			d.respond(l, protocol.OpStartDFU, protocol.StatusSuccess)
		}

	case bootInit:
		d.initPacket = append(d.initPacket, value...)

	case bootImage:
		d.image = append(d.image, value...)
		d.packets++

		if d.DropAfterPackets > 0 && d.packets >= d.DropAfterPackets {
			d.link.alive = false
			return
		}
		if uint32(len(d.image)) > d.imageSize {
			d.state = bootIdle
			d.respond(l, protocol.OpReceiveFirmwareImage, protocol.StatusDataSizeExceedsLimit)
			return
		}
		if d.prn > 0 && d.packets%d.prn == 0 {
			offset := uint32(len(d.image) + d.ReceiptSkew)
			if d.ReceiptCRC {
				d.notify(l, roleControl, protocol.EncodeReceiptWithCRC(offset, protocol.CRC32(d.image)))
			} else {
				d.notify(l, roleControl, protocol.EncodeReceipt(offset))
			}
		}
		if uint32(len(d.image)) == d.imageSize {
			d.state = bootImageDone
			d.respond(l, protocol.OpReceiveFirmwareImage, protocol.StatusSuccess)
		}
	}
}
