package types

import "errors"

// EmbedType distinguishes which representation of a fragment was embedded.
type EmbedType string

const (
	// EmbedDef is a signature-weighted embedding of the fragment.
	EmbedDef EmbedType = "def"
	// EmbedContent is a body-weighted embedding of the fragment.
	EmbedContent EmbedType = "content"
)

// Fragment is one indexed unit of source code. Fragments are produced by
// the external ingestion pipeline and are immutable once indexed.
type Fragment struct {
	FilePath         string    `json:"filePath"`
	StartLine        int       `json:"startLine"`
	EndLine          int       `json:"endLine"`
	Signature        string    `json:"signature"`
	ParentSignatures []string  `json:"parentSignatures"`
	Content          string    `json:"content"`
	Docstring        string    `json:"docstring"`
	Tags             []string  `json:"tags"`
	Calls            []string  `json:"calls"`
	CalledBy         []string  `json:"calledBy"`
	EmbedType        EmbedType `json:"embedType"`
	EmbedVersion     string    `json:"embedVersion"`
}

// Key uniquely identifies a fragment within a merged result set.
type Key struct {
	FilePath  string
	StartLine int
	EndLine   int
	EmbedType EmbedType
}

// Key returns the fragment's uniqueness key.
func (f *Fragment) Key() Key {
	return Key{
		FilePath:  f.FilePath,
		StartLine: f.StartLine,
		EndLine:   f.EndLine,
		EmbedType: f.EmbedType,
	}
}

// Lines returns the number of source lines the fragment spans.
func (f *Fragment) Lines() int {
	return f.EndLine - f.StartLine + 1
}

// Validate checks the fragment's line-range invariant.
func (f *Fragment) Validate() error {
	if f.FilePath == "" {
		return errors.New("fragment file path cannot be empty")
	}
	if f.StartLine <= 0 || f.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if f.EndLine < f.StartLine {
		return errors.New("end line must be at or after start line")
	}
	return nil
}
