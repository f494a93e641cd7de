package axlf

import "errors"

// Structural errors: the image or an input file is not well formed.
var (
	ErrInvalidMagic    = errors.New("axlf: invalid magic")
	ErrCorruptImage    = errors.New("axlf: corrupt image")
	ErrMissingMirror   = errors.New("axlf: no mirror data found")
	ErrMalformedMirror = errors.New("axlf: malformed mirror data")
)

// Missing-entity errors: the requested section or key does not exist.
// Callers special-case these to distinguish "nothing to do" from bad input.
var (
	ErrMissingSection = errors.New("axlf: section not found")
	ErrMissingKey     = errors.New("axlf: key not found")
)

// Usage errors: the request itself violates the contract of a kind.
var (
	ErrUnknownKind       = errors.New("axlf: unknown section kind")
	ErrSectionExists     = errors.New("axlf: section already exists")
	ErrFormatUnsupported = errors.New("axlf: unsupported format for section")
	ErrIndexRequired     = errors.New("axlf: section index required")
	ErrIndexForbidden    = errors.New("axlf: section index not supported")
	ErrBadDescriptor     = errors.New("axlf: malformed descriptor")
)
