package extract

import "errors"

var (
	// ErrNotInitialized is returned when extraction runs on an Extractor that
	// was never built by New.
	ErrNotInitialized = errors.New("extract: extractor not initialized")

	// ErrInvalidConfig is returned by New for unusable geometry or mode.
	ErrInvalidConfig = errors.New("extract: invalid configuration")

	// ErrFrameMismatch is returned when a frame's planes do not match the
	// configured geometry and device mode.
	ErrFrameMismatch = errors.New("extract: frame does not match configuration")
)
