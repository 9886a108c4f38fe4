package media

import (
	"errors"
	"fmt"
)

// Reason classifies a media pipeline failure.
type Reason string

const (
	ReasonDownload    Reason = "download"
	ReasonUnsupported Reason = "unsupported_format"
	ReasonTooLarge    Reason = "too_large"
	ReasonUpload      Reason = "upload"
)

// MediaError is a pipeline failure. It never fails the owning inbound
// event: the caller degrades to "text persisted, media missing".
type MediaError struct {
	Reason Reason
	Err    error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media pipeline: %s: %v", e.Reason, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

func mediaErr(reason Reason, err error) *MediaError {
	return &MediaError{Reason: reason, Err: err}
}

// IsUnsupported reports whether err is an unsupported-format failure.
func IsUnsupported(err error) bool {
	var me *MediaError
	return errors.As(err, &me) && me.Reason == ReasonUnsupported
}
