package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrProgramNotFound = errors.New("program not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotRejected     = errors.New("program is not rejected")

	// ErrStaleProgram means a concurrent update changed the program
	// between load and write. The operation is safe to retry.
	ErrStaleProgram = errors.New("program was modified concurrently")
)

// UnauthorizedError is returned when the caller lacks the role required
// for an operation. It never leaks program state.
type UnauthorizedError struct {
	Action string
	Role   Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: role %q cannot %s", e.Role, e.Action)
}

// CriteriaError is returned when exit criteria for a stage boundary are
// unmet. Errors lists every violated criterion.
type CriteriaError struct {
	From   Stage
	To     Stage
	Errors []string
}

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("stage %d to %d criteria unmet: %d issue(s)", e.From, e.To, len(e.Errors))
}

// InputError is returned for malformed operation payloads, such as a
// rejection reason below the minimum length.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LockedError is returned when a mutation is attempted on an archived
// (locked) program.
type LockedError struct {
	ID string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("program %q is archived and locked", e.ID)
}

// CodeConflictError is returned when a program business code is already
// in use.
type CodeConflictError struct {
	Code string
}

func (e *CodeConflictError) Error() string {
	return fmt.Sprintf("program code %q is already in use", e.Code)
}

// EmailConflictError is returned when a user email is already in use.
type EmailConflictError struct {
	Email string
}

func (e *EmailConflictError) Error() string {
	return fmt.Sprintf("email %q is already in use", e.Email)
}

// TransitionError is returned when a stage change is not allowed from
// the program's current stage.
type TransitionError struct {
	Event   Event
	Current Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from stage %d", e.Event, e.Current)
}
