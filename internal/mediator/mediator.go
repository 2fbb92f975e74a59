// Package mediator provides a process-wide, swappable debug-output
// sink, the Go analogue of the Rust source's Mediator::current().
// Every layer that wants to describe what it parsed calls
// mediator.Current().Debugf instead of writing to stdout directly, so
// a caller can redirect or silence that output without touching the
// parsing code.
package mediator

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Mediator receives structured debug output from format parsers.
type Mediator struct {
	// DebugOutput gates whether Debugf actually logs.
	DebugOutput bool
	logger      *slog.Logger
}

var current atomic.Pointer[Mediator]

func init() {
	current.Store(&Mediator{logger: slog.Default()})
}

// Current returns the process-wide mediator.
func Current() *Mediator {
	return current.Load()
}

// SetCurrent installs m as the process-wide mediator.
func SetCurrent(m *Mediator) {
	current.Store(m)
}

// New returns a mediator that logs to logger when debugOutput is true.
func New(logger *slog.Logger, debugOutput bool) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mediator{DebugOutput: debugOutput, logger: logger}
}

// Debugf logs a formatted debug message if DebugOutput is enabled.
func (m *Mediator) Debugf(format string, args ...any) {
	if m == nil || !m.DebugOutput {
		return
	}
	m.logger.Debug(fmt.Sprintf(format, args...))
}
