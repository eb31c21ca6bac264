// Package logger provides structured logging with zap.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// IsProduction reports whether env names the production environment, in any case
func IsProduction(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "production")
}

// New creates a zap.Logger for the given environment. Anything other than
// production gets the development logger with debug output.
func New(env string) *zap.Logger {
	if IsProduction(env) {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}
