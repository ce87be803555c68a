package logging

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	AppName string
	Level   string
	Pretty  bool
}

// NewLogger builds the zap-backed logger every service receives. Pretty
// switches to the development encoder for local runs.
func NewLogger(cfg Config) (ectologger.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.AppName != "" {
		zapCfg.InitialFields = map[string]any{"service": cfg.AppName}
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), zapLogger.Sync, nil
}
