// Package monitoring owns the process-wide diagnostic log streams.
//
// Three streams are kept apart so operators can mute the noisy ones:
//   - ops: actionable warnings, errors and lifecycle events
//   - diag: day-to-day diagnostics (config, file loads, skipped lines)
//   - trace: per-sweep telemetry
//
// Each stream is a zap sugared logger. By default ops goes to stderr and
// diag/trace are muted.
package monitoring

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   *zap.SugaredLogger
	diagLogger  *zap.SugaredLogger
	traceLogger *zap.SugaredLogger
)

func init() {
	SetLogWriters(LogWriters{Ops: os.Stderr})
}

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger("ops", w.Ops)
	diagLogger = newLogger("diag", w.Diag)
	traceLogger = newLogger("trace", w.Trace)
}

// SetLogger routes every stream through l, tagged with a "stream" field.
// Passing nil mutes all streams.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		opsLogger, diagLogger, traceLogger = nil, nil, nil
		return
	}
	opsLogger = l.Sugar().With("stream", "ops")
	diagLogger = l.Sugar().With("stream", "diag")
	traceLogger = l.Sugar().With("stream", "trace")
}

// newLogger builds a console-encoded zap logger writing to w, or returns
// nil if w is nil.
func newLogger(stream string, w io.Writer) *zap.SugaredLogger {
	if w == nil {
		return nil
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)
	return zap.New(core).Named("lidarsim").Sugar().With("stream", stream)
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	if l != nil {
		l.Infof(format, args...)
	}
}

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	if l != nil {
		l.Debugf(format, args...)
	}
}

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	if l != nil {
		l.Debugf(format, args...)
	}
}

// Sync flushes any buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range []*zap.SugaredLogger{opsLogger, diagLogger, traceLogger} {
		if l != nil {
			_ = l.Sync()
		}
	}
}
