// Package ldaperr defines the result-code taxonomy this backend returns to
// its caller (spec.md §7), in the same two-layer shape as the teacher's
// pkg/fs/errors.go (sentinel errors + a wrapping struct) and pkg/nfs/errors.go
// (a code-mapping function over os/syscall errors).
package ldaperr

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Sentinel errors for the abstract result kinds of §7. Success is not an
// error and has no sentinel; callers test err == nil.
var (
	ErrNoSuchObject         = errors.New("no such object")
	ErrAlreadyExists        = errors.New("already exists")
	ErrNotAllowedOnNonLeaf  = errors.New("not allowed on non-leaf")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInappropriateAuth    = errors.New("inappropriate authentication")
	ErrInsufficientAccess   = errors.New("insufficient access")
	ErrUnwillingToPerform   = errors.New("unwilling to perform")
	ErrBusy                 = errors.New("busy")
	ErrOther                = errors.New("other internal error")
	ErrReferral             = errors.New("referral")
)

// Result wraps an underlying sentinel with the operation and DN it
// occurred against, mirroring the teacher's FSError{Op, Path, Err}.
type Result struct {
	Op   string
	DN   string
	Err  error
	Text string // optional human-readable detail, e.g. a parse failure message
}

func (r *Result) Error() string {
	if r.Text != "" {
		return fmt.Sprintf("%s %s: %v (%s)", r.Op, r.DN, r.Err, r.Text)
	}
	return fmt.Sprintf("%s %s: %v", r.Op, r.DN, r.Err)
}

func (r *Result) Unwrap() error { return r.Err }

// New wraps sentinel as a *Result for operation op against distinguished
// name targetDN.
func New(op, targetDN string, sentinel error) *Result {
	return &Result{Op: op, DN: targetDN, Err: sentinel}
}

// Newf is New with an attached human-readable detail.
func Newf(op, targetDN string, sentinel error, textFormat string, args ...interface{}) *Result {
	return &Result{Op: op, DN: targetDN, Err: sentinel, Text: fmt.Sprintf(textFormat, args...)}
}

// Is reports whether err, or any error it wraps, is sentinel.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}

// FromOSError maps a syscall/os-level error into one of the sentinels
// above, the way the teacher's mapOSError does for NFS errors. Callers
// that already know which sentinel applies (e.g. "parent missing" during
// add) should not go through this function; it is for the cases where the
// backend is reacting to a raw filesystem error.
func FromOSError(err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return ErrNoSuchObject
		case syscall.EEXIST:
			return ErrAlreadyExists
		case syscall.ENOTEMPTY:
			return ErrNotAllowedOnNonLeaf
		case syscall.EACCES, syscall.EPERM:
			return ErrInsufficientAccess
		}
	}
	switch {
	case os.IsNotExist(err):
		return ErrNoSuchObject
	case os.IsExist(err):
		return ErrAlreadyExists
	}
	return ErrOther
}
