package dfu

import "time"

// Progress phases reported through ProgressCallback.
const (
	PhaseConnecting   = "connecting"
	PhaseSwitching    = "switching"
	PhaseHandshaking  = "handshaking"
	PhaseInit         = "init"
	PhaseTransferring = "transferring"
	PhaseValidating   = "validating"
	PhaseComplete     = "complete"
)

// Progress contains information about the update progress.
// Passed to ProgressCallback during Run.
type Progress struct {
	// Phase describes the current operation phase:
	//   "connecting"   - Opening the link and detecting the running firmware
	//   "switching"    - Rebooting the application into the bootloader
	//   "handshaking"  - Resolving characteristics and starting the update
	//   "init"         - Sending the init packet
	//   "transferring" - Streaming the image
	//   "validating"   - Validating and activating the image
	//   "complete"     - Update finished
	Phase string

	// BytesSent is the number of image bytes written so far
	BytesSent int

	// TotalBytes is the image size
	TotalBytes int

	// Packets is the number of image packets written so far
	Packets int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the update started
	ElapsedTime time.Duration
}

// ProgressCallback is called during the update to report progress.
// Implementations should return quickly; the transfer waits for them.
//
// Example:
//
//	sess := dfu.NewSession(transport, addr, dfu.Secure{},
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %d/%d bytes\n",
//	            p.Phase, p.Percentage, p.BytesSent, p.TotalBytes)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the session.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	sess := dfu.NewSession(transport, addr, dfu.Legacy{}, dfu.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
