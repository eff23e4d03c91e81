package netops

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestClassifyErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"eexist", unix.EEXIST, ErrAlreadyExists},
		{"enoent", unix.ENOENT, ErrNotFound},
		{"enodev", unix.ENODEV, ErrNotFound},
		{"eperm", unix.EPERM, ErrPermissionDenied},
		{"eacces", unix.EACCES, ErrPermissionDenied},
		{"einval", unix.EINVAL, ErrKernelRejected},
		{"wrapped eexist", fmt.Errorf("link add: %w", unix.EEXIST), ErrAlreadyExists},
		{"message only", errors.New("file exists"), ErrAlreadyExists},
		{"message not found", errors.New("Link not found"), ErrNotFound},
		{"message eperm", errors.New("operation not permitted"), ErrPermissionDenied},
		{"unknown", errors.New("netlink receive: invalid argument"), ErrKernelRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify("create-bridge", "vsb-test", tc.err)
			if !errors.Is(got, tc.kind) {
				t.Errorf("classify(%v) kind = %v, want %v", tc.err, got, tc.kind)
			}
		})
	}
}

func TestOpErrorMessageNamesEntityAndStep(t *testing.T) {
	err := classify("delete-bridge", "vsb-vpc1-abc123", unix.ENOENT)
	msg := err.Error()
	if want := "delete-bridge"; !strings.Contains(msg, want) {
		t.Errorf("error %q does not name the step %q", msg, want)
	}
	if want := "vsb-vpc1-abc123"; !strings.Contains(msg, want) {
		t.Errorf("error %q does not name the object %q", msg, want)
	}
}

func TestBenignHelpers(t *testing.T) {
	exists := classify("create-bridge", "b", unix.EEXIST)
	missing := classify("delete-bridge", "b", unix.ENOENT)

	if !IsBenignCreate(nil) || !IsBenignCreate(exists) {
		t.Error("IsBenignCreate should accept nil and AlreadyExists")
	}
	if IsBenignCreate(missing) {
		t.Error("IsBenignCreate should reject NotFound")
	}
	if !IsBenignDelete(nil) || !IsBenignDelete(missing) {
		t.Error("IsBenignDelete should accept nil and NotFound")
	}
	if IsBenignDelete(exists) {
		t.Error("IsBenignDelete should reject AlreadyExists")
	}
}
