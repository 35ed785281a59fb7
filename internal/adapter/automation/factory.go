package automation

import (
	"time"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/pipeline"
)

// ModeMock selects the mock automation client.
const ModeMock = "MOCK"

// New returns the mock client when mode is MOCK, otherwise a real Client.
func New(mode, endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) pipeline.Automation {
	if mode == ModeMock {
		if logger != nil {
			logger.Info("mock mode detected, using mock automation client")
		}
		return NewMockClient()
	}
	return NewClient(endpoint, apiKey, timeout, logger)
}
