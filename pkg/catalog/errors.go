package catalog

import (
	"fmt"

	"github.com/pkg/errors"
)

// LoadErrorKind classifies a failure to load a source
type LoadErrorKind string

// Load error kinds
const (
	LoadNotFound     LoadErrorKind = "not_found"
	LoadParseError   LoadErrorKind = "parse_error"
	LoadSizeExceeded LoadErrorKind = "size_exceeded"
	LoadNetwork      LoadErrorKind = "network"
)

// LoadError reports why a source, or one entry of it, could not be loaded
type LoadError struct {
	Kind   LoadErrorKind
	Source string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s (%s)", e.Source, e.Kind)
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Recoverable reports whether the caller may fall back to another source
func (e *LoadError) Recoverable() bool {
	return e.Kind == LoadNotFound
}

// NewLoadError builds a LoadError wrapping err
func NewLoadError(kind LoadErrorKind, source, path string, err error) *LoadError {
	return &LoadError{Kind: kind, Source: source, Path: path, Err: err}
}

// IsLoadError reports whether err carries a LoadError of the given kind
func IsLoadError(err error, kind LoadErrorKind) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Kind == kind
}

// MergeErrorKind classifies a failure to merge catalogs
type MergeErrorKind string

// Merge error kinds
const (
	MergeAliasCycle        MergeErrorKind = "alias_cycle"
	MergeDanglingReference MergeErrorKind = "dangling_reference"
)

// MergeError names the skill and source that made a merge fail
type MergeError struct {
	Kind   MergeErrorKind
	Skill  SkillID
	Source string
	Detail string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s: skill %q from %s: %s", e.Kind, e.Skill, e.Source, e.Detail)
}
