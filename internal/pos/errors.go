package pos

import (
	"errors"
	"fmt"
)

// FailureKind is the closed set of business failure signals. Callers branch
// on the kind instead of parsing messages.
type FailureKind string

const (
	FailValidation       FailureKind = "VALIDATION_ERROR"
	FailNotFound         FailureKind = "NOT_FOUND"
	FailForbidden        FailureKind = "FORBIDDEN"
	FailNoAssignment     FailureKind = "NO_ASSIGNMENT"
	FailAlreadyPaid      FailureKind = "ALREADY_PAID"
	FailOrderTerminal    FailureKind = "ORDER_TERMINAL"
	FailEditLocked       FailureKind = "EDIT_LOCKED"
	FailTransferConflict FailureKind = "TRANSFER_CONFLICT"
)

type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string { return f.Message }

func failf(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err. The second return is false for
// infrastructure errors, which roll back the whole operation and may be
// retried by the caller.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

func IsKind(err error, kind FailureKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
