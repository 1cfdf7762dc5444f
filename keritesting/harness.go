package keritesting

import (
	"github.com/datatrails/go-datatrails-common/logger"
)

// NewLog initializes the package logger (idempotent across test runs, as
// logger.New itself is) and returns a named logger.Logger for label,
// mirroring mmrtesting.TestContext's own log setup.
func NewLog(label string) logger.Logger {
	logger.New("TEST")
	return logger.Sugar.WithServiceName(label)
}
