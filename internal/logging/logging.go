// Package logging builds the zap logger used by the command line tool and
// adapts it to dfu.Logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moffa90/go-nrfdfu/dfu"
)

// Output formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger writing to stderr at the given level
// (debug, info, warn, error) and format (console, json).
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	case FormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	default:
		return nil, fmt.Errorf("log format %q: want %s or %s", format, FormatConsole, FormatJSON)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Adapter implements dfu.Logger on top of zap.
type Adapter struct {
	log *zap.SugaredLogger
}

var _ dfu.Logger = (*Adapter)(nil)

// NewAdapter wraps l. A nil logger discards everything.
func NewAdapter(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Adapter{log: l.Sugar()}
}

// Debug implements dfu.Logger.
func (a *Adapter) Debug(msg string, keysAndValues ...interface{}) {
	a.log.Debugw(msg, keysAndValues...)
}

// Info implements dfu.Logger.
func (a *Adapter) Info(msg string, keysAndValues ...interface{}) {
	a.log.Infow(msg, keysAndValues...)
}

// Error implements dfu.Logger.
func (a *Adapter) Error(msg string, keysAndValues ...interface{}) {
	a.log.Errorw(msg, keysAndValues...)
}
