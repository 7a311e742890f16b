package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ent0n29/echo/internal/reliability"
)

// Sentinels for errors.Is matching across the taxonomy.
var (
	ErrPrecondition = errors.New("precondition failed")
	ErrCapability   = errors.New("capability failed")
	ErrPermission   = errors.New("permission denied")
)

// PreconditionError rejects an operation that is invalid for the current state.
// It is returned before any capability is invoked.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// CapabilityError wraps a failure reported by an external session, audio or
// network capability.
type CapabilityError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *CapabilityError) Error() string {
	if e.Err == nil {
		return e.Op + ": capability failed"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

func (e *CapabilityError) Is(target error) bool { return target == ErrCapability }

// PermissionError reports that microphone access was refused.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string {
	return e.Op + ": microphone permission denied"
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

func Precondition(op, reason string) error {
	return &PreconditionError{Op: op, Reason: reason}
}

// Capability wraps err unless it already belongs to the taxonomy.
func Capability(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPrecondition) || errors.Is(err, ErrCapability) || errors.Is(err, ErrPermission) {
		return err
	}
	return &CapabilityError{Op: op, Err: err, Retryable: reliability.IsRetryableError(err)}
}

func Permission(op string) error {
	return &PermissionError{Op: op}
}

// Message returns the user-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ce *CapabilityError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}
