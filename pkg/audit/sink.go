package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the audit log file
const (
	DefaultFilename   = "stordb.log"
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

const timeLayout = "2006-01-02 15:04:05.000"

// SinkConfig selects where audit entries go.
type SinkConfig struct {
	// Debug sends entries to Console at debug level instead of the file.
	Debug bool
	// Console is the debug destination. Defaults to os.Stderr.
	Console io.Writer
	// File is the rotating log file path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewZapLogger builds the zap logger behind the audit trail.
func NewZapLogger(conf SinkConfig) (*zap.Logger, error) {
	var (
		writer zapcore.WriteSyncer
		level  zapcore.Level
	)

	if conf.Debug {
		console := conf.Console
		if console == nil {
			console = os.Stderr
		}
		writer = zapcore.AddSync(console)
		level = zapcore.DebugLevel
	} else {
		w, err := fileWriter(conf)
		if err != nil {
			return nil, err
		}
		writer = w
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(encoder(), writer, level)
	return zap.New(core).Named("stordb"), nil
}

func encoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileWriter(conf SinkConfig) (zapcore.WriteSyncer, error) {
	path := conf.File
	if path == "" {
		path = DefaultFilename
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: failed to create log directory: %w", err)
		}
	}

	rotate := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(conf.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: orDefault(conf.MaxBackups, DefaultMaxBackups),
		MaxAge:     orDefault(conf.MaxAgeDays, DefaultMaxAgeDays),
	}
	return zapcore.AddSync(rotate), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
