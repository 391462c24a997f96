package tools

import (
	"errors"
	"fmt"
)

// ErrPolicyViolation is returned when a tool call targets a tool that
// exists but was deliberately hidden from the current context (e.g. the
// task-management tool during a scheduled turn). Distinct from
// ErrToolUnavailable so callers can tell an intentional restriction from
// a hallucinated tool name.
var ErrPolicyViolation = errors.New("policy violation")

// ErrToolUnavailable is returned when a tool call targets a tool that
// does not exist in the registry at all. This indicates a capability
// mismatch, not a transient execution failure.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}
