package configuration

import (
	"go.uber.org/zap"
)

// NewLogger returns a development logger for local environments and a JSON
// production logger otherwise.
func NewLogger(config *Config) (*zap.Logger, error) {
	if config.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
