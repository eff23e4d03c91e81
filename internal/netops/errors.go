package netops

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Error kinds returned by adapter operations. Callers performing idempotent
// provisioning treat ErrAlreadyExists on create as success; cleanup treats
// ErrNotFound on delete as success.
var (
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrKernelRejected   = errors.New("kernel rejected operation")
)

// OpError describes a failed kernel operation: which operation, on which
// object, and the classified kind.
type OpError struct {
	Op     string
	Object string
	Kind   error
	Err    error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Object, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Object, e.Kind)
}

// Unwrap exposes both the kind sentinel and the underlying error to errors.Is.
func (e *OpError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// classify wraps a raw kernel/netlink error into an OpError with one of the
// four error kinds.
func classify(op, object string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Object: object, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, unix.EEXIST),
		os.IsExist(err):
		return ErrAlreadyExists
	case errors.Is(err, ErrNotFound),
		errors.Is(err, unix.ENOENT),
		errors.Is(err, unix.ENODEV),
		os.IsNotExist(err),
		isLinkNotFound(err):
		return ErrNotFound
	case errors.Is(err, unix.EPERM),
		errors.Is(err, unix.EACCES),
		os.IsPermission(err):
		return ErrPermissionDenied
	}

	// netns and exec paths sometimes surface errno only as message text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "file exists"):
		return ErrAlreadyExists
	case strings.Contains(msg, "no such file"),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "not found"):
		return ErrNotFound
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"):
		return ErrPermissionDenied
	}

	return ErrKernelRejected
}

// IsBenignCreate reports whether err can be ignored by an idempotent create.
func IsBenignCreate(err error) bool {
	return err == nil || errors.Is(err, ErrAlreadyExists)
}

// IsBenignDelete reports whether err can be ignored by an idempotent delete.
func IsBenignDelete(err error) bool {
	return err == nil || errors.Is(err, ErrNotFound)
}
