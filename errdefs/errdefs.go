// Package errdefs defines the error kinds used across the kernel
// compiler. Callers classify failures with errors.Is (or the Is*
// helpers) rather than matching message text, so packages are free to
// wrap these sentinels with call-site context.
package errdefs

import "errors"

var (
	// ErrInvalidArgument indicates malformed input to an operation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPrecondition indicates an operation was invoked before the
	// state it depends on was established.
	ErrPrecondition = errors.New("failed precondition")

	// ErrUnsupported indicates a configuration the compiler recognizes
	// but does not handle.
	ErrUnsupported = errors.New("unsupported")

	// ErrCompilation indicates a lower-level form compiler failed to
	// produce kernels.
	ErrCompilation = errors.New("compilation failed")

	// ErrNotFound indicates a lookup failed to resolve a required entry.
	ErrNotFound = errors.New("not found")
)

func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }

func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }

func IsCompilation(err error) bool { return errors.Is(err, ErrCompilation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
