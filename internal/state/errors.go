// ABOUTME: Validation error type for snapshot construction
// ABOUTME: Always a client error; callers match it with errors.As

package state

import "fmt"

// ValidationError reports why a snapshot was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Message)
}
