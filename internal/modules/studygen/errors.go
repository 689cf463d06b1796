package studygen

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTask reports a task name outside the registry.
	ErrUnknownTask = errors.New("unknown task")
	// ErrContractViolation reports a malformed shape reaching a task contract,
	// distinct from a legitimate "no content" outcome.
	ErrContractViolation = errors.New("task contract violation")
)

// ContentTooLargeError is the fail-fast size rejection. It is raised before
// any generation call is made and carries both sides of the comparison so the
// caller can act on it.
type ContentTooLargeError struct {
	EstimatedTokens int
	MaxTokens       int
}

func (e *ContentTooLargeError) Error() string {
	return fmt.Sprintf("content too large: estimated %d tokens, ceiling %d tokens", e.EstimatedTokens, e.MaxTokens)
}

// IsContentTooLarge reports whether err is a size rejection.
func IsContentTooLarge(err error) bool {
	var ce *ContentTooLargeError
	return errors.As(err, &ce)
}
