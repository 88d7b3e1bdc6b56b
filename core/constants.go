package core

import "errors"

const (
	// DefaultAddr is where the server listens unless configured otherwise
	DefaultAddr = "127.0.0.1:4221"

	DefaultReadBufferSize = 4096 // 4kB
)

// Error definitions
var (
	ErrInvalidWorkers = errors.New("core: workers must be positive")
	ErrServerClosed   = errors.New("core: server closed")
)
