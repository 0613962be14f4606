package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Recorder receives trace events. Implementations must be safe for
// concurrent use and return quickly.
type Recorder interface {
	Record(event Event)
}

// NoopRecorder discards all events. Usable as a zero value.
type NoopRecorder struct{}

// Record discards the event.
func (NoopRecorder) Record(Event) {}

var _ Recorder = NoopRecorder{}

// MemoryRecorder keeps events in memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends the event.
func (r *MemoryRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var _ Recorder = (*MemoryRecorder)(nil)

// FileRecorder appends CBOR-encoded events to a file.
type FileRecorder struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewFileRecorder opens path for appending, creating it with mode 0644.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileRecorder{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Record writes the event. Events recorded after Close are dropped.
func (r *FileRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	// Encoding errors must not disturb the update.
	_ = r.encoder.Encode(event)
}

// Close closes the file. It is safe to call more than once.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

var _ Recorder = (*FileRecorder)(nil)

// Decode reads events from r until EOF.
func Decode(r io.Reader) ([]Event, error) {
	dec := NewDecoder(r)

	var events []Event
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, event)
	}
}

// ReadFile reads every event recorded in path.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}
