// Package rollback is the rollback Sync engine (component C8): it
// orchestrates the saved-frame ring, per-player input queues, and the
// async compressor into Save/Load/AddInput/Synchronize/CheckSimulation/
// Adjust, a deterministic rollback-and-replay driver for an externally
// owned simulation.
package rollback

import (
	"fmt"

	"rollback/internal/compressor"
	"rollback/internal/config"
	"rollback/internal/frames"
	"rollback/internal/inputqueue"
	"rollback/internal/pool"
	"rollback/internal/scratch"
	"rollback/internal/simd"
	"rollback/internal/stats"
	"rollback/internal/telemetry"
)

// ConnectStatus is one peer's connect flag. The engine keeps its own
// per-player array of these, written only through SetConnectStatus and read
// by SynchronizeInputs; it does not read a caller-owned array.
type ConnectStatus struct {
	Disconnected bool
	LastFrame    int
}

type lastStateRecord struct {
	valid bool
	frame int
	data  scratch.Buffer
}

// Sync is the rollback engine. Build one with New; it is not safe for
// concurrent use from more than one simulation-thread goroutine (the
// background compressor goroutine is the only other actor, and it's
// managed internally).
type Sync struct {
	cfg       config.Config
	callbacks Callbacks
	log       telemetry.Logger

	ring    *frames.Ring
	queues  []*inputqueue.Queue
	pool    *pool.Pool
	comp    *compressor.Compressor
	stats   stats.Recorder
	connect []ConnectStatus

	currentFrame        int
	lastConfirmedFrame  int
	rollingBack         bool
	savedInitialFrame   bool
	lastState           lastStateRecord
	loadBuf, deltaScrap scratch.Buffer
}

// New builds a Sync engine. cfg.NumPredictionFrames determines the ring
// capacity (NumPredictionFrames + 2, per spec). If cfg.AsyncCompress is
// set, the background compressor goroutine starts immediately.
func New(cfg config.Config, callbacks Callbacks, log telemetry.Logger) *Sync {
	if log == nil {
		log = telemetry.LoggerFunc(func(string, ...any) {})
	}
	ringCap := cfg.NumPredictionFrames + 2

	s := &Sync{
		cfg:                cfg,
		callbacks:          callbacks,
		log:                log,
		ring:               frames.New(ringCap),
		queues:             make([]*inputqueue.Queue, cfg.NumPlayers),
		connect:            make([]ConnectStatus, cfg.NumPlayers),
		currentFrame:       0,
		lastConfirmedFrame: inputqueue.NullFrame,
	}
	for i := range s.queues {
		s.queues[i] = inputqueue.New(i, cfg.InputSize)
	}
	s.pool = pool.New(ringCap, callbacks.Free)
	s.comp = compressor.New(ringCap, s.recycleRaw, s.stats.RecordFrame, log)
	if cfg.AsyncCompress {
		s.comp.Start()
	}
	return s
}

// CurrentFrame reports the engine's current frame number.
func (s *Sync) CurrentFrame() int {
	return s.currentFrame
}

// SetConnectStatus updates the engine's connect-status entry for player i.
func (s *Sync) SetConnectStatus(i int, status ConnectStatus) {
	s.connect[i] = status
}

// SetLastConfirmedFrame records the newest frame confirmed across all
// peers, used by AddLocalInput's prediction-barrier check, and discards
// every input queue's stored inputs up to that frame.
func (s *Sync) SetLastConfirmedFrame(frame int) {
	s.lastConfirmedFrame = frame
	for _, q := range s.queues {
		q.DiscardConfirmedFrames(frame)
	}
}

// Stats returns a point-in-time snapshot of the engine's running
// statistics, combining frame classification/ratio counters with the
// compressor's current queue depths.
func (s *Sync) Stats() stats.Snapshot {
	df, kf, last, max, avg := s.stats.FrameCounts()
	jobLen, resultLen, jobMax, resultMax, pending := s.comp.Stats()
	return stats.Snapshot{
		DeltaFrames:            df,
		Keyframes:              kf,
		DeltaRatioLast:         last,
		DeltaRatioMax:          max,
		DeltaRatioAvg:          avg,
		CompressJobQueueLen:    jobLen,
		CompressResultQueueLen: resultLen,
		CompressJobQueueMax:    jobMax,
		CompressResultQueueMax: resultMax,
		CompressPendingCount:   pending,
	}
}

func (s *Sync) recycleRaw(buf []byte, capacity int) {
	s.pool.Recycle(buf, capacity)
}

// freeSlot releases whatever a ring slot currently holds, awaiting any
// in-flight compression first so no worker-owned buffer is orphaned.
func (s *Sync) freeSlot(slot *frames.SavedFrame) {
	if slot.CompressPending {
		s.comp.WaitFor(slot)
	}
	if slot.Buf == nil {
		return
	}
	if slot.Encoding == frames.Raw {
		s.recycleRaw(slot.Buf, slot.BufCapacity)
	}
	// Compressed/delta buffers are engine-owned allocations; the garbage
	// collector reclaims them once dropped.
	slot.Buf = nil
	slot.Frame = frames.NullFrame
	slot.CompressPending = false
}

func (s *Sync) updateLastState(raw []byte, frame int) {
	s.lastState.data.Ensure(len(raw))
	copy(s.lastState.data.Bytes(), raw)
	s.lastState.frame = frame
	s.lastState.valid = true
}

// SaveCurrentFrame captures the simulation's state for currentFrame into
// the ring, choosing delta-vs-raw encoding and kicking off (async or
// synchronous) compression.
func (s *Sync) SaveCurrentFrame() error {
	s.comp.ProcessResults()

	idx := s.ring.Head()
	slot := s.ring.At(idx)
	if slot.Buf != nil {
		s.freeSlot(slot)
	}

	borrowed, _ := s.pool.Acquire()

	result, ok := s.callbacks.Save(borrowed, s.currentFrame)
	if !ok {
		return fmt.Errorf("rollback: save callback failed at frame %d: %w", s.currentFrame, ErrCallbackFailed)
	}
	if borrowed != nil && !sameBacking(borrowed, result.Buf) {
		s.recycleRaw(borrowed, cap(borrowed))
	}

	slot.Frame = s.currentFrame
	slot.Buf = result.Buf
	slot.CBuf = len(result.Buf)
	slot.UncompressedSize = len(result.Buf)
	slot.BufCapacity = cap(result.Buf)
	slot.Checksum = result.Checksum
	slot.Encoding = frames.Raw
	slot.CompressPending = false
	s.pool.NoteSize(slot.UncompressedSize)

	useDelta := s.lastState.valid &&
		s.lastState.data.Len() == slot.UncompressedSize &&
		s.lastState.frame == s.currentFrame-1 &&
		!frames.IsKeyframe(s.currentFrame, config.KeyframeInterval)

	if useDelta {
		deltaBuf := make([]byte, slot.UncompressedSize)
		simd.XorOutOfPlace(deltaBuf, slot.Buf, s.lastState.data.Bytes())
		rawBuf, rawCap := slot.Buf, slot.BufCapacity
		s.updateLastState(slot.Buf, s.currentFrame)
		s.recycleRaw(rawBuf, rawCap)
		slot.Buf = deltaBuf
		slot.CBuf = slot.UncompressedSize
		slot.BufCapacity = slot.UncompressedSize
		slot.Encoding = frames.Delta
	} else {
		s.updateLastState(slot.Buf, s.currentFrame)
	}

	// The compressor folds this frame's delta_ratio_* contribution into
	// s.stats itself, once cbuf reaches its final value: synchronously here
	// on the CompressSync fallback, or later from apply() when a queued job
	// completes. Recording here instead would see cbuf==uncompressedSize
	// for every async frame and permanently skew the async-config stats.
	if !s.cfg.AsyncCompress || !s.comp.Queue(slot, slot.Buf, slot.Frame, s.cfg.LZ4Accel) {
		s.comp.CompressSync(slot, slot.Buf, s.cfg.LZ4Accel)
	}

	s.ring.Advance()
	return nil
}

// LoadFrame restores the simulation to frame. On success current_frame
// becomes frame and the ring's write cursor is repositioned to just past
// the loaded slot, so the next save evicts whatever predicted frames
// followed it.
func (s *Sync) LoadFrame(frame int) error {
	if frame == s.currentFrame {
		return nil
	}
	idx := s.ring.Find(frame)
	if idx < 0 {
		return fmt.Errorf("rollback: load frame %d: %w", frame, ErrFrameNotFound)
	}
	slot := s.ring.At(idx)
	if slot.CompressPending {
		s.comp.WaitFor(slot)
	}

	s.loadBuf.Ensure(slot.UncompressedSize)
	out := s.loadBuf.Bytes()

	switch {
	case slot.Encoding.IsDelta():
		if err := frames.Reconstruct(s.ring, frame, out, &s.deltaScrap); err != nil {
			return fmt.Errorf("rollback: load frame %d: %w", frame, ErrReconstructionFailed)
		}
	case slot.Encoding.IsCompressed():
		if err := frames.DecodeRaw(slot, out); err != nil {
			return fmt.Errorf("rollback: load frame %d: %w", frame, ErrDecompressionFailed)
		}
	default:
		copy(out, slot.Buf[:slot.UncompressedSize])
	}

	if !s.callbacks.Load(out) {
		return fmt.Errorf("rollback: load callback rejected frame %d: %w", frame, ErrCallbackFailed)
	}
	s.updateLastState(out, frame)

	s.currentFrame = slot.Frame
	s.ring.SetHeadAfter(idx)
	return nil
}

// AddLocalInput stamps inp with the current frame and enqueues it for
// player playerIdx, refusing when the local simulation has predicted too
// far ahead of confirmed remote input (the prediction barrier).
func (s *Sync) AddLocalInput(playerIdx int, bits []byte) error {
	if s.currentFrame >= s.cfg.NumPredictionFrames &&
		s.currentFrame-s.lastConfirmedFrame >= s.cfg.NumPredictionFrames {
		return fmt.Errorf("rollback: add local input at frame %d: %w", s.currentFrame, ErrPredictionBarrierReached)
	}
	if s.currentFrame == 0 && !s.savedInitialFrame {
		if err := s.SaveCurrentFrame(); err != nil {
			return err
		}
		s.savedInitialFrame = true
	}
	s.queues[playerIdx].AddInput(inputqueue.GameInput{Frame: s.currentFrame, Bits: bits})
	return nil
}

// AddRemoteInput stores an authoritative input for playerIdx, exactly
// like AddLocalInput but without the prediction-barrier/initial-save
// bookkeeping, which only applies to the local player's own input stream.
func (s *Sync) AddRemoteInput(playerIdx int, input inputqueue.GameInput) {
	s.queues[playerIdx].AddInput(input)
}

// SynchronizeInputs fills out[i] with the input to use for player i on
// the current frame, confirmed or predicted, and reports which players
// are marked disconnected past their last known frame via a bitmask.
func (s *Sync) SynchronizeInputs(out [][]byte) (disconnectFlags uint32) {
	for i, q := range s.queues {
		status := s.connect[i]
		if status.Disconnected && s.currentFrame > status.LastFrame {
			disconnectFlags |= 1 << uint(i)
			for j := range out[i] {
				out[i][j] = 0
			}
			continue
		}
		input, ok := q.GetInput(s.currentFrame)
		if ok {
			copy(out[i], input.Bits)
		}
	}
	return disconnectFlags
}

// CheckSimulation looks for the oldest misprediction across all input
// queues and, if one exists, rolls back and replays to correct it.
func (s *Sync) CheckSimulation() error {
	seek, found := s.checkSimulationConsistency()
	if !found {
		return nil
	}
	return s.AdjustSimulation(seek)
}

func (s *Sync) checkSimulationConsistency() (seek int, found bool) {
	for _, q := range s.queues {
		f := q.GetFirstIncorrectFrame()
		if f == inputqueue.NullFrame {
			continue
		}
		if !found || f < seek {
			seek, found = f, true
		}
	}
	return seek, found
}

// AdjustSimulation rolls back to seek and replays forward to the frame
// current_frame was at when the misprediction was detected. A LoadFrame
// failure (or a post-load frame mismatch) is a logged degradation, not a
// fatal error: predictions are reset from seek and resimulation is
// skipped. An Advance callback returning false is fatal and surfaced.
func (s *Sync) AdjustSimulation(seek int) error {
	target := s.currentFrame
	s.rollingBack = true
	defer func() { s.rollingBack = false }()

	if err := s.LoadFrame(seek); err != nil || s.currentFrame != seek {
		s.log.Warnf("rollback: load frame %d failed during rollback (%v); resetting predictions without resimulating", seek, err)
		for _, q := range s.queues {
			q.ResetPrediction(seek)
		}
		return nil
	}

	for _, q := range s.queues {
		q.ResetPrediction(s.currentFrame)
	}

	count := target - seek
	for i := 0; i < count; i++ {
		if !s.callbacks.Advance(0) {
			return fmt.Errorf("rollback: advance callback failed during replay at frame %d: %w", s.currentFrame, ErrCallbackFailed)
		}
		if err := s.IncrementFrame(); err != nil {
			return err
		}
	}
	if s.currentFrame != target {
		return fmt.Errorf("rollback: adjust simulation ended at frame %d, expected %d", s.currentFrame, target)
	}
	return nil
}

// IncrementFrame advances current_frame and saves the resulting state.
func (s *Sync) IncrementFrame() error {
	s.currentFrame++
	return s.SaveCurrentFrame()
}

// RollingBack reports whether the engine is currently inside
// AdjustSimulation's replay loop.
func (s *Sync) RollingBack() bool {
	return s.rollingBack
}

// Close stops the background compressor (joining its goroutine) and
// releases every buffer the ring and pool hold. After Close the Sync
// value must not be used again.
func (s *Sync) Close() {
	s.comp.Stop()
	for i := 0; i < s.ring.Capacity(); i++ {
		slot := s.ring.At(i)
		if slot.Buf != nil && slot.Encoding == frames.Raw {
			s.recycleRaw(slot.Buf, slot.BufCapacity)
		}
		slot.Buf = nil
	}
	s.pool.Clear()
}
