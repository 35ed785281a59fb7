package llm

import (
	"time"

	"go.uber.org/zap"
)

// ModeMock indicates mock mode should be used.
const ModeMock = "MOCK"

// NewLLMClient returns a MockClient when mode is MOCK, otherwise a real
// Client.
func NewLLMClient(mode, baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) LLMClient {
	if mode == ModeMock {
		if logger != nil {
			logger.Info("mock mode detected, using mock LLM client")
		}
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, model, timeout)
}
