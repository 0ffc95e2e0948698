package qnet

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// newEndpointID mints a correlation id attached to every log line an
// endpoint emits, the way stripe's tcp conn manager tags each connection
// with a uuid before logging around it.
func newEndpointID() string {
	return uuid.NewString()
}

// nopLogger is the default when EventLoop is built without WithLogger.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}
