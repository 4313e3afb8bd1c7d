// Package logging builds the zap logger every package manager component
// derives from, plus the field helpers that keep entry keys consistent
// across the session, registry, archive and broadcast code.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process root. Components never log through it directly;
// they take a Component child.
type Logger struct {
	*zap.Logger
}

// Config mirrors the PM_LOG_* settings.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// New builds the root logger. Development mode writes colored console
// lines with stack traces; otherwise entries are JSON.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Component returns a child logger named and tagged for one subsystem
// (session, registry, archive, verification, ...). Extra fields are
// attached to every entry the child writes.
func (l *Logger) Component(name string, fields ...zap.Field) *zap.Logger {
	return l.Logger.Named(name).With(append([]zap.Field{zap.String(KeyComponent, name)}, fields...)...)
}

// Entry keys shared by every component.
const (
	KeyComponent = "component"
	KeySession   = "session_id"
	KeyPackage   = "package"
	KeyPackages  = "packages"
	KeyUser      = "user"
)

// Session tags an entry with an install session id.
func Session(id int) zap.Field { return zap.Int(KeySession, id) }

// Package tags an entry with a package name.
func Package(name string) zap.Field { return zap.String(KeyPackage, name) }

// Packages tags an entry with a list of package names.
func Packages(names []string) zap.Field { return zap.Array(KeyPackages, stringArray(names)) }

// User tags an entry with a user id. AllUsers (-1) is logged as is.
func User(id int) zap.Field { return zap.Int(KeyUser, id) }

// ID logs any string-backed identifier (broadcast, delivery, request ids)
// without going through fmt.Stringer.
func ID[T ~string](key string, v T) zap.Field { return zap.String(key, string(v)) }

type stringArray []string

func (a stringArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, v := range a {
		enc.AppendString(v)
	}
	return nil
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeDuration = zapcore.StringDurationEncoder
		return cfg
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}
