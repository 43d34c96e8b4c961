package services

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON in production, console otherwise
func NewLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
