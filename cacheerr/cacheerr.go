// Package cacheerr defines the error categories the cache reports to its
// callers. Categories are sentinel values, not numeric codes, following
// spec.md §7: bad-handle, invalid-argument, too-many-open,
// resource-exhausted, and io.
package cacheerr

import "fmt"

// CacheError is the interface implemented by every error this package
// produces. It layers onto the standard `error` interface so callers can
// still use `errors.Is`/`errors.As` against the category sentinels below.
type CacheError interface {
	error
	WithMessage(message string) CacheError
	Wrap(err error) CacheError
	Unwrap() error
}

// Category is a sentinel error identifying one of the categories in
// spec.md §7. Comparing an error against a Category with errors.Is tells
// you which category a failure belongs to, regardless of how much context
// has been layered on with WithMessage or Wrap.
type Category string

const (
	// ErrBadHandle: caller supplied an out-of-range or unused descriptor slot.
	ErrBadHandle = Category("bad file descriptor")
	// ErrInvalidArgument: nonsensical seek offset, unknown whence, or an
	// unaligned buffer where alignment is required.
	ErrInvalidArgument = Category("invalid argument")
	// ErrTooManyOpen: the descriptor table is full.
	ErrTooManyOpen = Category("too many open files")
	// ErrResourceExhausted: aligned allocation failed, or the cache failed
	// to initialize its arena.
	ErrResourceExhausted = Category("resource exhausted")
	// ErrIO: any failure of the raw-file adapter.
	ErrIO = Category("input/output error")
)

func (c Category) Error() string {
	return string(c)
}

func (c Category) WithMessage(message string) CacheError {
	return &wrapped{category: c, message: message}
}

func (c Category) Wrap(err error) CacheError {
	return &wrapped{category: c, message: err.Error(), cause: err}
}

func (c Category) Unwrap() error {
	return nil
}

// wrapped is a Category with extra context layered on by WithMessage or
// Wrap. It matches its original Category through Is (below) so
// errors.Is(err, cacheerr.ErrIO) still works after wrapping, and exposes
// any wrapped cause through Unwrap.
type wrapped struct {
	category Category
	message  string
	cause    error
}

func (e *wrapped) Error() string {
	if e.message == "" {
		return string(e.category)
	}
	return fmt.Sprintf("%s: %s", e.category, e.message)
}

func (e *wrapped) WithMessage(message string) CacheError {
	return &wrapped{
		category: e.category,
		message:  fmt.Sprintf("%s: %s", e.message, message),
		cause:    e.cause,
	}
}

func (e *wrapped) Wrap(err error) CacheError {
	return &wrapped{
		category: e.category,
		message:  fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		cause:    err,
	}
}

// Unwrap exposes the wrapped cause, if any, so errors.Is/errors.As can
// still reach an underlying rawfile or syscall error.
func (e *wrapped) Unwrap() error {
	return e.cause
}

// Is reports whether target is this error's category, so
// errors.Is(err, cacheerr.ErrIO) keeps working no matter how much
// context WithMessage/Wrap have layered on top.
func (e *wrapped) Is(target error) bool {
	category, ok := target.(Category)
	return ok && category == e.category
}
