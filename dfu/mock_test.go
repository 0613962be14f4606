package dfu

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/moffa90/go-nrfdfu/gatt"
)

// mockTransport is a gatt.Transport whose behaviour is scripted per test.
type mockTransport struct{ mock.Mock }

func (m *mockTransport) Connect(ctx context.Context, addr gatt.Address, typ gatt.AddressType) error {
	return m.Called(addr, typ).Error(0)
}

func (m *mockTransport) Disconnect() error {
	return m.Called().Error(0)
}

func (m *mockTransport) ResolveCharacteristic(ctx context.Context, id uuid.UUID) (gatt.Handles, error) {
	args := m.Called(id)
	return args.Get(0).(gatt.Handles), args.Error(1)
}

func (m *mockTransport) WriteRequest(ctx context.Context, handle uint16, value []byte) error {
	return m.Called(handle, value).Error(0)
}

func (m *mockTransport) WriteCommand(handle uint16, value []byte) error {
	return m.Called(handle, value).Error(0)
}

func (m *mockTransport) Subscribe(ctx context.Context, cccd uint16, mode gatt.SubscribeMode) error {
	return m.Called(cccd, mode).Error(0)
}

func (m *mockTransport) AwaitNotification(ctx context.Context) (gatt.Notification, error) {
	args := m.Called()
	return args.Get(0).(gatt.Notification), args.Error(1)
}

func (m *mockTransport) IsAlive() bool {
	return m.Called().Bool(0)
}

// recordingLogger keeps every message.
type recordingLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *recordingLogger) Debug(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugMsgs = append(l.debugMsgs, msg)
}

func (l *recordingLogger) Info(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoMsgs = append(l.infoMsgs, msg)
}

func (l *recordingLogger) Error(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorMsgs = append(l.errorMsgs, msg)
}
