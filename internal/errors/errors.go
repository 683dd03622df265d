// Package errors defines the coded errors kmerge reports at the command
// boundary and the exit codes they map to.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is a stable identifier for a failure mode.
type ErrorCode string

const (
	// InvalidArguments: bad flags, missing operands, conflicting options.
	InvalidArguments ErrorCode = "INVALID_ARGUMENTS"
	// NoValidInputs: every input path was rejected.
	NoValidInputs ErrorCode = "NO_VALID_INPUTS"
	// OutputUnwritable: the destination could not be created, written or closed.
	OutputUnwritable ErrorCode = "OUTPUT_UNWRITABLE"
	ConfigInvalid    ErrorCode = "CONFIG_INVALID"
	PlanInvalid      ErrorCode = "PLAN_INVALID"
	// JournalUnavailable: the run journal database could not be opened.
	JournalUnavailable ErrorCode = "JOURNAL_UNAVAILABLE"
	RunNotFound        ErrorCode = "RUN_NOT_FOUND"
	Cancelled          ErrorCode = "CANCELLED"
	InternalError      ErrorCode = "INTERNAL_ERROR"
)

// FixActionType is the kind of remedy a FixAction suggests.
type FixActionType string

const (
	RunCommand FixActionType = "run-command"
	CheckPaths FixActionType = "check-paths"
)

// FixAction is a suggested remedy shown alongside an error.
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Error carries a code, a message, an optional cause and suggested fixes.
type Error struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        any         `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates an Error with the default fixes for code.
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: SuggestedFixes(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails attaches structured details and returns e.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

var fixes = map[ErrorCode][]FixAction{
	NoValidInputs: {
		{Type: CheckPaths, Description: "Inputs must be existing regular files distinct from the output"},
	},
	JournalUnavailable: {
		{Type: RunCommand, Command: "kmerge --no-journal ...", Description: "Run without recording history"},
	},
	ConfigInvalid: {
		{Type: RunCommand, Command: "kmerge config show", Description: "Inspect the effective configuration"},
	},
	InvalidArguments: {
		{Type: RunCommand, Command: "kmerge --help", Description: "Show usage"},
	},
}

// SuggestedFixes returns the default fixes for code, if any.
func SuggestedFixes(code ErrorCode) []FixAction {
	return fixes[code]
}
