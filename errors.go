package rollback

import "errors"

// Error kinds surfaced by the sync engine, matching the error handling
// design's kinds section. They are sentinels rather than exceptions:
// callers use errors.Is against these to decide whether a failure is a
// transient condition (retry, degrade) or fatal to the current tick.
var (
	// ErrPredictionBarrierReached means AddLocalInput was refused because
	// the local simulation has run too far ahead of confirmed remote
	// input. The producer should retry on a later tick.
	ErrPredictionBarrierReached = errors.New("rollback: prediction barrier reached")

	// ErrFrameNotFound means a ring lookup missed. During rollback it is
	// handled like any other load failure: predictions are reset from the
	// seek frame and resimulation is skipped. No rebuild from another
	// retained frame is attempted.
	ErrFrameNotFound = errors.New("rollback: frame not found in ring")

	// ErrReconstructionFailed means a delta chain was broken. Rollback
	// abandons the load, resets predictions from the seek frame, and
	// continues without resimulating.
	ErrReconstructionFailed = errors.New("rollback: delta chain reconstruction failed")

	// ErrCompressionFailed means LZ4 declined to compress (no win) or the
	// allocator failed. Non-fatal: the raw form is kept.
	ErrCompressionFailed = errors.New("rollback: compression failed")

	// ErrDecompressionFailed means a compressed payload could not be
	// restored. Fatal for the current load: the caller must abort the
	// tick.
	ErrDecompressionFailed = errors.New("rollback: decompression failed")

	// ErrLoadRejected means the requested frame was out of range or an
	// empty slot.
	ErrLoadRejected = errors.New("rollback: load rejected")

	// ErrCallbackFailed wraps a simulation callback (save/load/advance)
	// returning false, which is always fatal to the current operation.
	ErrCallbackFailed = errors.New("rollback: simulation callback failed")
)
