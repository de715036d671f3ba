package domain

import (
	"fmt"
	"strings"
)

// Validation error codes.
const (
	ErrCodeNoStates               = "NO_STATES"
	ErrCodeRootKind               = "ROOT_KIND"
	ErrCodeDuplicateState         = "DUPLICATE_STATE"
	ErrCodeInvalidID              = "INVALID_ID"
	ErrCodeInvalidKind            = "INVALID_KIND"
	ErrCodeInvalidChild           = "INVALID_CHILD"
	ErrCodeCompoundInvalidInitial = "COMPOUND_INVALID_INITIAL"
	ErrCodeInvalidTarget          = "INVALID_TARGET"
	ErrCodeMissingAction          = "MISSING_ACTION"
	ErrCodeMissingGuard           = "MISSING_GUARD"
	ErrCodeInvalidInvoke          = "INVALID_INVOKE"
	ErrCodeDuplicateInvoke        = "DUPLICATE_INVOKE"
	ErrCodeInvalidSpawn           = "INVALID_SPAWN"
	ErrCodeFinalTransitions       = "FINAL_TRANSITIONS"
)

// ValidationIssue represents a single structural problem.
type ValidationIssue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// String returns a human-readable representation of the issue.
func (v ValidationIssue) String() string {
	loc := strings.Join(nonEmpty(v.Path), " ")
	if loc != "" {
		return fmt.Sprintf("[%s] %s (at %s)", v.Code, v.Message, loc)
	}
	return fmt.Sprintf("[%s] %s", v.Code, v.Message)
}

// ValidationError contains every issue found while building a Machine.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0].String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d issues:\n", len(e.Issues))
	for i, issue := range e.Issues {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, issue.String())
	}
	return b.String()
}

// AddIssue adds an issue.
func (e *ValidationError) AddIssue(code, message string, path ...string) {
	e.Issues = append(e.Issues, ValidationIssue{Code: code, Message: message, Path: path})
}

// HasIssues returns true if there are any issues.
func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// HasCode reports whether any issue carries code.
func (e *ValidationError) HasCode(code string) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
