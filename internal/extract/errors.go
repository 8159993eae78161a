package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentUnreadable marks source bytes that are not a parsable
	// document. It is terminal for the attempt.
	ErrDocumentUnreadable = errors.New("document unreadable")

	ErrUnsupportedMimeType = errors.New("unsupported mime type")
)

// DocumentUnreadableError carries the reason a document could not be opened.
type DocumentUnreadableError struct {
	MimeType string
	Err      error
}

func (e *DocumentUnreadableError) Error() string {
	return fmt.Sprintf("document unreadable (%s): %v", e.MimeType, e.Err)
}

func (e *DocumentUnreadableError) Unwrap() error { return e.Err }

func (e *DocumentUnreadableError) Is(target error) bool {
	return target == ErrDocumentUnreadable
}
