package loader

import (
	"errors"
	"fmt"
)

// Load failure kinds. Use errors.Is against a returned error to classify it.
var (
	ErrOpen          = errors.New("cannot open binary")
	ErrFormat        = errors.New("unrecognized executable format")
	ErrArchitecture  = errors.New("unsupported architecture")
	ErrSymbolTable   = errors.New("failed to read symbol table")
	ErrSectionRead   = errors.New("failed to read section")
	ErrAlreadyLoaded = errors.New("binary already loaded")
)

// LoadError describes why a load was aborted.
type LoadError struct {
	Kind error  // one of the Err* kinds above
	Path string // file being loaded
	Op   string // what the loader was doing, e.g. "read section .text"
	Err  error  // underlying cause, may be nil
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s '%s'", e.Kind, e.Path)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func loadErr(kind error, path, op string, err error) *LoadError {
	return &LoadError{Kind: kind, Path: path, Op: op, Err: err}
}
