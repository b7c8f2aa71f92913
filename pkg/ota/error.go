package ota

import (
	"errors"
	"fmt"

	"github.com/unbasical/bundleota/pkg/ota/metadata"
)

// UpdateError carries the kind of a failed operation and its cause.
// Both can be matched with errors.Is.
type UpdateError struct {
	kind  error
	cause error
}

func (u UpdateError) Error() string {
	if u.cause == nil {
		return u.kind.Error()
	}
	return fmt.Sprintf("%s: %s", u.kind.Error(), u.cause.Error())
}

func (u UpdateError) Unwrap() []error {
	if u.cause == nil {
		return []error{u.kind}
	}
	return []error{u.kind, u.cause}
}

// Kind returns one of the Err* kinds of this package.
func (u UpdateError) Kind() error {
	return u.kind
}

func NewUpdateError(kind error, cause error) error {
	return UpdateError{
		cause: cause,
		kind:  kind,
	}
}

var (
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrVersionRejected  = fmt.Errorf("version rejected")
	ErrTransferFailed   = fmt.Errorf("transfer failed")
	ErrTransportError   = fmt.Errorf("transport error")
	ErrActivationFailed = fmt.Errorf("activation failed")
	// ErrMetadataSerialization is the metadata package's error so both sentinels match.
	ErrMetadataSerialization = metadata.ErrSerialization
	ErrPullFailed            = fmt.Errorf("pull failed")
	ErrCloneFailed           = fmt.Errorf("clone failed")
	ErrDeleteFailed          = fmt.Errorf("failed to delete bundle")
	ErrRollbackFailed        = fmt.Errorf("failed to roll back bundle")
	ErrVersionPersistence    = fmt.Errorf("failed to persist version state")
)

var kindLabels = map[error]string{
	ErrInvalidInput:          "invalid_input",
	ErrVersionRejected:       "version_rejected",
	ErrTransferFailed:        "transfer_failed",
	ErrTransportError:        "transport_error",
	ErrActivationFailed:      "activation_failed",
	ErrMetadataSerialization: "metadata_serialization_failed",
	ErrPullFailed:            "pull_failed",
	ErrCloneFailed:           "clone_failed",
	ErrDeleteFailed:          "delete_failed",
	ErrRollbackFailed:        "rollback_failed",
	ErrVersionPersistence:    "version_persistence_failed",
}

// KindLabel returns a stable snake case name for the kind of err, "ok" for nil.
func KindLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var u UpdateError
	if errors.As(err, &u) {
		err = u.kind
	}
	if l, ok := kindLabels[err]; ok {
		return l
	}
	for kind, l := range kindLabels {
		if errors.Is(err, kind) {
			return l
		}
	}
	return "unknown"
}
