package types

import "errors"

// ErrEmptyQuestion indicates a request with no question text.
var ErrEmptyQuestion = errors.New("question is empty")
