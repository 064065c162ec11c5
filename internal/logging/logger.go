package logging

import (
	"fmt"

	"github.com/drewdunne/docshub/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger: JSON in production, console in
// development. The level defaults to info, or debug in development. When cfg.Dir is set, entries are also written as JSON to a
// daily file in that directory. The returned close function syncs the
// logger and closes the file.
func New(cfg config.LoggingConfig) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if cfg.Development {
		level = zapcore.DebugLevel
	}
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	if cfg.Dir == "" {
		return logger, func() { _ = logger.Sync() }, nil
	}

	w := NewWriter(cfg.Dir)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level)

	logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
	return logger, func() {
		_ = logger.Sync()
		_ = w.Close()
	}, nil
}
