// Package storage holds helpers shared by the document store backends.
package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("document not found")

// ObjectName builds the object key for a statement upload,
// e.g. "statements/<id>/march.pdf".
func ObjectName(statementID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return path.Join("statements", statementID, name)
}

// ParseURI splits "scheme://bucket/object" into bucket and object.
func ParseURI(uri, scheme string) (bucket, object string, err error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("invalid %s URI: %s", scheme, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid %s URI (no object path): %s", scheme, uri)
	}
	return parts[0], parts[1], nil
}

// Filename extracts the last path element of a URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func Filename(uri string) string {
	trimmed := uri
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
