package types

import (
	"sync"

	"go.uber.org/zap"
)

// Config carries the runtime knobs of the boundary layer.
//
// Debug turns defensive handling of protocol violations into hard panics and
// enables double-free detection diagnostics on owned buffers. TraceCalls
// starts an OpenTelemetry span around every boundary crossing. Both default
// to off; production deployments should keep them off.
type Config struct {
	Debug      bool `json:"debug" mapstructure:"debug"`
	TraceCalls bool `json:"trace_calls" mapstructure:"trace_calls"`
}

// DefaultConfig returns the configuration used when none is set explicitly.
func DefaultConfig() Config {
	return Config{}
}

var (
	configMu sync.RWMutex
	config   = DefaultConfig()
	logger   = zap.NewNop()
)

// SetConfig installs a new runtime configuration. Safe for concurrent use
// with readers; crossings in flight keep the configuration they started with.
func SetConfig(c Config) {
	configMu.Lock()
	config = c
	configMu.Unlock()
}

// CurrentConfig returns the active runtime configuration.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}

// DebugEnabled reports whether debug handling of protocol violations is on.
func DebugEnabled() bool {
	return CurrentConfig().Debug
}

// SetLogger installs the structured logger used for defused protocol
// violations and boundary diagnostics. Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	configMu.Lock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
	configMu.Unlock()
}

// Logger returns the active structured logger.
func Logger() *zap.Logger {
	configMu.RLock()
	defer configMu.RUnlock()
	return logger
}

// ReportViolation handles a broken retain/release or call protocol: it
// panics under Config.Debug and otherwise logs the violation and lets the
// caller continue defensively.
func ReportViolation(msg string, fields ...zap.Field) {
	if DebugEnabled() {
		panic(&ProtocolViolationError{Msg: msg})
	}
	Logger().Error("protocol violation", append([]zap.Field{zap.String("violation", msg)}, fields...)...)
}
