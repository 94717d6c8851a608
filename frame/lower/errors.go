package lower

import "errors"

var (
	// ErrMemory indicates that no subtree, region or frame can satisfy a request.
	ErrMemory = errors.New("frame: out of memory")

	// ErrRetry indicates a lost race; the identical call may be retried.
	ErrRetry = errors.New("frame: contention, retry")

	// ErrAddress indicates a misaligned, out of range or unallocated address.
	ErrAddress = errors.New("frame: invalid address")

	// ErrInit indicates an unusable memory range, core count or configuration.
	ErrInit = errors.New("frame: initialization failed")

	// ErrCorruption indicates a violated invariant or an exhausted retry budget.
	ErrCorruption = errors.New("frame: corrupted metadata")
)
