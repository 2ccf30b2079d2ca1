// Package logging builds the console's zap logger. The TUI owns the
// terminal, so everything goes to a JSON file that the log view tails.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLevel = "info"

// New opens a JSON logger writing to path at the given level ("debug",
// "info", "warn", "error"). The returned func flushes buffered entries.
func New(path, level string) (*zap.SugaredLogger, func(), error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("log path is empty")
	}
	if strings.TrimSpace(level) == "" {
		level = defaultLevel
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "ts"
	encoder.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	cfg := zap.Config{
		Level:            lvl,
		Encoding:         "json",
		EncoderConfig:    encoder,
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	sugar := logger.Sugar()
	return sugar, func() { _ = sugar.Sync() }, nil
}
