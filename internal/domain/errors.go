package domain

import "errors"

// ErrStatementNotFound is returned by repositories for an unknown statement id.
var ErrStatementNotFound = errors.New("statement not found")
