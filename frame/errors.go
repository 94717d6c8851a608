package frame

import "github.com/joshuapare/framekit/frame/lower"

// Errors returned by the allocator. Context is added with %w wrapping, so
// compare with errors.Is.
var (
	ErrMemory     = lower.ErrMemory
	ErrRetry      = lower.ErrRetry
	ErrAddress    = lower.ErrAddress
	ErrInit       = lower.ErrInit
	ErrCorruption = lower.ErrCorruption
)
