package logx

import (
	"context"
	"sync"
)

var (
	globalMu sync.Mutex
	global   *Service
)

// Init creates the process-wide service, or re-applies cfg to it when it
// already exists. Options only take effect on the first call.
func Init(cfg Config, opts ...Option) (*Service, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return global, global.Apply(cfg)
	}
	s, _, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	global = s
	return s, nil
}

// Default returns the process-wide service, or nil before Init.
func Default() *Service {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// L returns a named logger on the process-wide service. Before Init it
// returns a no-op logger.
func L(name string, fields ...Field) Logger {
	s := Default()
	if s == nil {
		return Nop()
	}
	return s.Logger(name, fields...)
}

// Shutdown closes the process-wide service. A later Init starts afresh.
func Shutdown(ctx context.Context) error {
	globalMu.Lock()
	s := global
	global = nil
	globalMu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close(ctx)
}
