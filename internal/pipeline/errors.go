package pipeline

import (
	"errors"
	"fmt"

	"diagramforge/internal/capability"
	"diagramforge/internal/stage"
)

// StageError wraps a stage failure with the stage that produced it.
type StageError struct {
	Stage stage.ID
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsDomainRejection reports whether err is a domain rejection and returns it.
func IsDomainRejection(err error) (*stage.DomainRejectionError, bool) {
	var rejection *stage.DomainRejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// IsStageUnavailable reports whether err means a capability stayed down
// through the retry budget.
func IsStageUnavailable(err error) bool {
	var capErr *capability.Error
	return errors.As(err, &capErr) && capErr.Kind == capability.KindUnavailable
}
