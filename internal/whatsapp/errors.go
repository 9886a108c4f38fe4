package whatsapp

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx answer from the upstream API. Status carries the
// upstream HTTP code so callers can pick the right retry policy.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api: status %d: %s", e.Status, e.Body)
}

// IsPermanent reports whether err is an upstream 4xx: the request itself is
// bad (unknown recipient, rejected template) and retrying cannot help.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500
	}
	return false
}

// IsTransient reports whether err is worth retrying: upstream 5xx, or a
// network-level failure (timeout, refused connection).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	// Anything that never produced an upstream status is a transport
	// failure and may succeed on retry.
	return true
}
