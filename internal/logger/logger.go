package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance *zap.SugaredLogger
	once     sync.Once
)

type Config struct {
	Development bool
	Name        string
}

// New builds the process-wide logger. Repeated calls return the first
// instance regardless of config.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var err error
	once.Do(func() {
		var l *zap.Logger
		if cfg.Development {
			l, err = zap.NewDevelopment()
		} else {
			l, err = zap.NewProduction()
		}
		if err != nil {
			return
		}
		if cfg.Name != "" {
			l = l.Named(cfg.Name)
		}
		instance = l.Sugar()
	})
	return instance, err
}

// Nop is used by tests and by SDK consumers that bring their own logging.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
