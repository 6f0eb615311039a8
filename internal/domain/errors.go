package domain

import (
	"errors"
	"fmt"

	m "github.com/mouse-blink/libpack/internal/model"
)

// Fatal and non-fatal conditions of a run. Files in an unrecognized format
// are skipped and never reported.
var (
	// ErrUnresolvableDependency is fatal only in strict mode.
	ErrUnresolvableDependency = errors.New("unresolvable dependency")
	// ErrUnreadableBinary is fatal only in strict mode.
	ErrUnreadableBinary = errors.New("unreadable binary")
	// ErrNameCollision is never fatal; it tags collision warnings.
	ErrNameCollision = errors.New("name collision")
	// ErrRewrite aborts the run.
	ErrRewrite = errors.New("rewrite failure")
	// ErrSignatureRevalidation aborts the run.
	ErrSignatureRevalidation = errors.New("signature revalidation failure")
	// ErrAborted wraps every fatal condition returned by a relocation.
	ErrAborted = errors.New("relocation aborted")
	// ErrIllegalTransition is returned when a run skips a stage.
	ErrIllegalTransition = errors.New("illegal stage transition")
)

// DependencyError ties a condition to the binary and dependency it was
// found on.
type DependencyError struct {
	Kind       error
	Binary     m.Path
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Binary)
	if e.Dependency != "" {
		msg = fmt.Sprintf("%v: %s (needed by %s)", e.Kind, e.Dependency, e.Binary)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DependencyError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// warningError converts a fatal-in-strict-mode warning into an error.
func warningError(w m.Warning) error {
	kind := ErrUnresolvableDependency
	if w.Kind == m.WarnUnreadable {
		kind = ErrUnreadableBinary
	}

	var cause error
	if w.Message != "" {
		cause = errors.New(w.Message)
	}

	return &DependencyError{Kind: kind, Binary: w.Binary, Dependency: w.Dependency, Err: cause}
}
