package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRecordNotFound is returned by Select when no record matches.
	ErrRecordNotFound = errors.New("record not found")

	// ErrShapeMismatch is returned when two grids combined cell by cell differ in shape.
	ErrShapeMismatch = errors.New("grid shape mismatch")
)

// PreconditionError reports that the input batch is not a complete forecast
// horizon. Nothing has been touched when it is returned.
type PreconditionError struct {
	Dir      string
	Found    int
	Expected int
	Reason   string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("precondition failed in %s: %s", e.Dir, e.Reason)
	}
	return fmt.Sprintf("wrong number of forecast files in %s: found %d, expected %d", e.Dir, e.Found, e.Expected)
}

// SelectionError reports an expected field missing from a forecast file.
type SelectionError struct {
	File     string
	Rule     string
	Selector Selector
	Err      error
}

func (e *SelectionError) Error() string {
	msg := fmt.Sprintf("rule %s: missing %s", e.Rule, e.Selector)
	if e.File != "" {
		msg += " in " + e.File
	}
	return msg
}

func (e *SelectionError) Unwrap() error { return e.Err }

// ToolUnavailableError reports an external executable that could not be resolved.
type ToolUnavailableError struct {
	Tool string
	Err  error
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("external tool %q unavailable: %v", e.Tool, e.Err)
}

func (e *ToolUnavailableError) Unwrap() error { return e.Err }

// ToolFailureError reports a non-zero exit or timeout of an external tool.
type ToolFailureError struct {
	Tool     string
	Args     []string
	ExitCode int
	Attempts int
	Timeout  time.Duration // non-zero when the last attempt timed out
	Stderr   string
	Err      error
}

func (e *ToolFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Tool, strings.Join(e.Args, " "))
	if e.Timeout > 0 {
		fmt.Fprintf(&b, ": timed out after %s", e.Timeout)
	} else {
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (%d attempts)", e.Attempts)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *ToolFailureError) Unwrap() error { return e.Err }

// TimedOut reports whether the failure was a timeout rather than an exit status.
func (e *ToolFailureError) TimedOut() bool { return e.Timeout > 0 }
