// Package kernelerr gives the recoverable error categories named by the
// specification a discriminated representation instead of overloaded
// sentinels, in the manner of go-ublk's structured *Error type.
package kernelerr

import (
	"errors"
	"fmt"
)

// Code is a high-level error category reported to a syscall caller as a
// negative return value.
type Code string

const (
	CodeInvalidLength     Code = "invalid length"
	CodeUnknownDestination Code = "unknown destination"
	CodeMailboxFull       Code = "mailbox full"
	CodeNoCurrentTask     Code = "no current task"
	CodeNoSlot            Code = "no slot"
	CodeExhausted         Code = "frame pool exhausted"
	CodeUnmapped          Code = "unmapped"
)

// Error is a structured kernel error carrying the operation that failed,
// the task it concerns (0 if not applicable), and the high-level code.
type Error struct {
	Op    string
	PID   uint64
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.PID != 0 {
		return fmt.Sprintf("kernel: %s: %s (pid=%d)", e.Op, msg, e.PID)
	}
	return fmt.Sprintf("kernel: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// New constructs a structured error for the given operation and code.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewForTask is New with a task PID attached for diagnostics.
func NewForTask(op string, pid uint64, code Code, msg string) *Error {
	return &Error{Op: op, PID: pid, Code: code, Msg: msg}
}

// Wrap attaches op/code context to an inner error.
func Wrap(op string, code Code, inner error) *Error {
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Sentinel errors for errors.Is against a bare code, independent of a
// specific *Error instance.
var (
	ErrInvalidLength      = &Error{Code: CodeInvalidLength}
	ErrUnknownDestination = &Error{Code: CodeUnknownDestination}
	ErrMailboxFull        = &Error{Code: CodeMailboxFull}
	ErrNoCurrentTask      = &Error{Code: CodeNoCurrentTask}
	ErrNoSlot             = &Error{Code: CodeNoSlot}
	ErrExhausted          = &Error{Code: CodeExhausted}
	ErrUnmapped           = &Error{Code: CodeUnmapped}
)

// Errno maps an error's code to the ABI's negative-integer return-value
// convention. Unrecognized errors map to a generic -1.
func Errno(err error) int64 {
	var e *Error
	if !errors.As(err, &e) {
		return -1
	}
	switch e.Code {
	case CodeInvalidLength:
		return -1
	case CodeUnknownDestination:
		return -2
	case CodeMailboxFull:
		return -3
	case CodeNoCurrentTask:
		return -4
	case CodeNoSlot:
		return -5
	case CodeExhausted:
		return -6
	case CodeUnmapped:
		return -7
	default:
		return -1
	}
}
