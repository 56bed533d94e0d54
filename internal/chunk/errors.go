package chunk

import "errors"

var (
	// ErrNotFound is returned when no head row exists for a file ID.
	ErrNotFound = errors.New("file not found")

	// ErrBrokenChain is returned in strict mode when a NextID points at a missing
	// row or at a row already visited.
	ErrBrokenChain = errors.New("broken chunk chain")

	// ErrChecksumMismatch is returned when hash verification is enabled and a
	// chunk's payload no longer matches its stored hash.
	ErrChecksumMismatch = errors.New("chunk checksum mismatch")

	// ErrUnknownSize is returned when the source length is not given and the
	// source cannot seek.
	ErrUnknownSize = errors.New("source size unknown")

	// ErrSizeMismatch is returned when the source yields a different number of
	// bytes than declared.
	ErrSizeMismatch = errors.New("source size mismatch")

	// ErrInvalidPage is returned for a page or limit below one.
	ErrInvalidPage = errors.New("invalid page")
)
