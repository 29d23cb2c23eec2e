// Store error code mapping.

package errors

import (
	"errors"

	"github.com/aws/smithy-go"
)

// FromStore maps a store-reported error onto the engine's sentinel
// taxonomy so callers can use errors.Is. Errors with no mapping are
// returned unchanged; transient errors are left alone for the retry
// executor to classify.
func FromStore(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return errors.Join(ErrNotFound, err)
	case "AccessDenied", "AccessDeniedException", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.Join(ErrAccessDenied, err)
	default:
		return err
	}
}
