package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatLogfmt  = "logfmt"
)

// output is swapped by tests that need to capture log lines.
var output io.Writer = os.Stderr

type LoggerConfig struct {
	Debug bool
	// Format is one of console, json or logfmt. Empty defaults to json.
	Format string
}

// NewLogger builds a zap logger writing to stderr.
func NewLogger(cfg *LoggerConfig, options ...zap.Option) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Debug {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format(time.RFC3339))
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", FormatJSON:
		encoder = zapcore.NewJSONEncoder(encCfg)
	case FormatLogfmt:
		encoder = zaplogfmt.NewEncoder(encCfg)
	case FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), level)

	opts := append([]zap.Option{zap.AddCaller()}, options...)
	return zap.New(core, opts...), nil
}
