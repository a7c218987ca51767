package core

import "errors"

var (
	ErrDuplicateName   = errors.New("profile name already exists")
	ErrNotFound        = errors.New("profile not found")
	ErrLastProfile     = errors.New("cannot delete the last remaining profile")
	ErrIndexOutOfRange = errors.New("rule index out of range")
	ErrInvalidField    = errors.New("invalid rule field")

	// ErrMalformedRule marks rules the compiler skips. Disabled or unnamed rows are a normal
	// editing state, so it never reaches callers of CompileDirectives.
	ErrMalformedRule = errors.New("malformed rule")

	// ErrInvalidDirective is returned by an engine rejecting a rule update.
	ErrInvalidDirective = errors.New("invalid directive")
)
