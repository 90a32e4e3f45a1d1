// Package grlog wires up the daemon's structured logger. Every subsystem
// gets a named child logger, the same way caddyserver/caddy's Log().Named(...)
// is used throughout that codebase.
package grlog

import (
	"fmt"
	"sync"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root *zap.Logger = zap.NewNop()
)

// Options configures the root logger constructed by Init.
type Options struct {
	// Verbosity is the repeated -v count from the CLI (§6); 0 is Info (the
	// zap level standing in for the original's NOTICE), each increment
	// lowers the effective level by one step.
	Verbosity int
	// FilePath, if non-empty, redirects output to a rotating file instead
	// of stderr.
	FilePath string
}

// levelForVerbosity mirrors the original's log_level = RTE_LOG_NOTICE plus
// one decrement per repeated -v.
func levelForVerbosity(v int) zapcore.Level {
	switch {
	case v <= 0:
		return zapcore.InfoLevel
	case v == 1:
		return zapcore.DebugLevel
	default:
		return zapcore.DebugLevel - zapcore.Level(v-1)
	}
}

// Init (re)configures the package-level root logger. Safe to call once at
// startup; not safe to call concurrently with Named/L.
func Init(opts Options) error {
	var ws zapcore.WriteSyncer
	if opts.FilePath != "" {
		ws = zapcore.AddSync(&timberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    64, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	} else {
		var err error
		ws, _, err = zap.Open("stderr")
		if err != nil {
			return fmt.Errorf("grlog: open stderr sink: %w", err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	level := levelForVerbosity(opts.Verbosity)
	core := zapcore.NewCore(encoder, ws, level)

	mu.Lock()
	root = zap.New(core)
	mu.Unlock()
	return nil
}

// L returns the root logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a named child of the root logger, the way caddy.Log().
// Named(name) scopes log lines to a subsystem (e.g. "dispatch", "bond").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes any buffered log entries. Errors from syncing a tty/console
// (ENOTTY) are expected and ignored, matching zap's own documented advice.
func Sync() {
	_ = L().Sync()
}
