package pipeline

import (
	"fmt"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// Error is a run failure attributed to the phase it happened in.
type Error struct {
	Phase domain.Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
