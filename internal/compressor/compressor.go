// Package compressor implements the async compressor (component C6): one
// background worker goroutine, two bounded queues (jobs in, results out),
// a mutex, and two condition variables, the direct analogue of the
// source's worker-thread-plus-deques design, expressed with
// sync.Mutex/sync.Cond instead of a raw pthread mutex and two condvars.
package compressor

import (
	"sync"

	"rollback/internal/codec"
	"rollback/internal/frames"
	"rollback/internal/telemetry"
)

// Job describes one pending compression: the slot it belongs to, the raw
// bytes to compress, and the frame/accel it was queued under.
type Job struct {
	State *frames.SavedFrame
	Input []byte
	Frame int
	Accel int
}

// Result carries a job back to the producer thread for application.
// CompressedSize <= 0 means compression failed or was not a win.
type Result struct {
	State          *frames.SavedFrame
	Input          []byte
	Frame          int
	Compressed     []byte
	CompressedSize int
}

// RecycleFunc returns a raw (uncompressed) buffer to the caller's pool
// once it has been superseded by a compressed replacement.
type RecycleFunc func(buf []byte, capacity int)

// RecordFunc folds one saved frame's final classification and compression
// ratio into the caller's running statistics. It is invoked exactly once
// per frame, at the point cbuf reaches its final value: after the swap in
// apply/CompressSync, whether or not compression won. That's what makes
// async and sync compression report identical delta_ratio_* statistics
// for the same workload.
type RecordFunc func(isDelta bool, cbuf, uncompressedSize int)

// Compressor is the worker + queue pair. The zero value is not usable;
// build one with New.
type Compressor struct {
	mu     sync.Mutex
	cvJobs *sync.Cond
	cvDone *sync.Cond

	jobs    []Job
	results []Result
	pending map[*frames.SavedFrame]bool

	jobsMax, resultsMax int
	ringDepth           int

	shutdown bool
	started  bool
	done     chan struct{}

	recycle RecycleFunc
	record  RecordFunc
	log     telemetry.Logger
}

// New builds a Compressor bounded to ringDepth outstanding jobs+results.
// recycle is invoked when a raw buffer is superseded by a compressed one;
// record is invoked once per finished frame with its final ratio. Both may
// be nil.
func New(ringDepth int, recycle RecycleFunc, record RecordFunc, log telemetry.Logger) *Compressor {
	c := &Compressor{
		ringDepth: ringDepth,
		recycle:   recycle,
		record:    record,
		log:       log,
		pending:   make(map[*frames.SavedFrame]bool),
	}
	c.cvJobs = sync.NewCond(&c.mu)
	c.cvDone = sync.NewCond(&c.mu)
	return c
}

// Start launches the worker goroutine. Calling Start on an already
// started Compressor is a no-op.
func (c *Compressor) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.shutdown = false
	c.done = make(chan struct{})
	c.mu.Unlock()
	go c.workerLoop()
}

// Running reports whether the worker goroutine is active.
func (c *Compressor) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.shutdown
}

// Queue submits a compression job. It rejects (returns false) if the
// worker isn't running, shutdown is in progress, state already has a job
// in flight, or the combined queue depth has reached ringDepth.
func (c *Compressor) Queue(state *frames.SavedFrame, input []byte, frame, accel int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.shutdown {
		return false
	}
	if c.pending[state] {
		return false
	}
	if len(c.jobs)+len(c.results) >= c.ringDepth {
		return false
	}

	c.jobs = append(c.jobs, Job{State: state, Input: input, Frame: frame, Accel: accel})
	if len(c.jobs) > c.jobsMax {
		c.jobsMax = len(c.jobs)
	}
	state.CompressPending = true
	c.pending[state] = true
	c.cvJobs.Signal()
	return true
}

func (c *Compressor) workerLoop() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for !c.shutdown && len(c.jobs) == 0 {
			c.cvJobs.Wait()
		}
		if c.shutdown && len(c.jobs) == 0 {
			c.mu.Unlock()
			return
		}
		job := c.jobs[0]
		c.jobs = c.jobs[1:]
		c.mu.Unlock()

		compressed, size, ok := compress(job.Input, job.Accel)

		c.mu.Lock()
		if c.shutdown {
			delete(c.pending, job.State)
			job.State.CompressPending = false
			c.mu.Unlock()
			continue
		}
		res := Result{State: job.State, Input: job.Input, Frame: job.Frame, CompressedSize: -1}
		if ok {
			res.Compressed = compressed[:size]
			res.CompressedSize = size
		}
		c.results = append(c.results, res)
		if len(c.results) > c.resultsMax {
			c.resultsMax = len(c.results)
		}
		c.cvDone.Signal()
		c.mu.Unlock()
	}
}

func compress(input []byte, accel int) ([]byte, int, bool) {
	bound := codec.CompressBound(len(input))
	if bound == 0 {
		return nil, 0, false
	}
	dst := make([]byte, bound)
	n, ok := codec.CompressFast(dst, input, accel)
	if !ok {
		return nil, 0, false
	}
	return dst, n, true
}

// ProcessResults drains the results queue on the producer thread, calling
// apply for each without holding the mutex.
func (c *Compressor) ProcessResults() {
	for {
		c.mu.Lock()
		if len(c.results) == 0 {
			c.mu.Unlock()
			return
		}
		res := c.results[0]
		c.results = c.results[1:]
		delete(c.pending, res.State)
		c.mu.Unlock()
		c.apply(res)
	}
}

func sameBacking(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == 0 && len(b) == 0
	}
	return &a[0] == &b[0]
}

// apply merges a finished compression into its slot, discarding it if the
// slot's identity has since changed (a stale result). record fires exactly
// once here for every non-stale frame, win or not, so a queued job that
// never wins still contributes an accurate (uncompressed) ratio.
func (c *Compressor) apply(res Result) {
	state := res.State
	state.CompressPending = false

	if state.Encoding.IsCompressed() || state.Frame != res.Frame || !sameBacking(state.Buf, res.Input) {
		return // stale: the slot moved on before this result arrived
	}

	wasDelta := state.Encoding.IsDelta()
	if res.CompressedSize > 0 && res.CompressedSize < state.UncompressedSize {
		oldBuf := state.Buf
		state.Buf = res.Compressed
		state.CBuf = res.CompressedSize
		state.BufCapacity = res.CompressedSize
		if wasDelta {
			state.Encoding = frames.DeltaCompressed
			// The delta buffer was engine-owned; nothing to recycle.
		} else {
			state.Encoding = frames.Compressed
			if c.recycle != nil {
				c.recycle(oldBuf, cap(oldBuf))
			}
		}
	}
	if c.record != nil {
		c.record(wasDelta, state.CBuf, state.UncompressedSize)
	}
}

// WaitFor blocks until state's pending compression (if any) has been
// applied, draining results as it goes. Safe to call when nothing is
// pending. Returns immediately if the worker has been (or is being)
// stopped, clearing the pending flag so the caller isn't wedged.
func (c *Compressor) WaitFor(state *frames.SavedFrame) {
	for {
		c.ProcessResults()

		c.mu.Lock()
		if !state.CompressPending {
			c.mu.Unlock()
			return
		}
		if c.shutdown {
			state.CompressPending = false
			delete(c.pending, state)
			c.mu.Unlock()
			return
		}
		for len(c.results) == 0 && !c.shutdown {
			c.cvDone.Wait()
		}
		c.mu.Unlock()
	}
}

// CompressSync performs the compress-and-swap inline, used as a fallback
// when Queue rejects a job (async disabled, ring full, worker stopped).
// It calls record on the same terms as apply, so the sync and async paths
// fold identical ratios into the caller's statistics.
func (c *Compressor) CompressSync(state *frames.SavedFrame, input []byte, accel int) {
	wasDelta := state.Encoding.IsDelta()
	if compressed, size, ok := compress(input, accel); ok && size > 0 && size < state.UncompressedSize {
		oldBuf := state.Buf
		state.Buf = compressed[:size]
		state.CBuf = size
		state.BufCapacity = size
		if wasDelta {
			state.Encoding = frames.DeltaCompressed
		} else {
			state.Encoding = frames.Compressed
			if c.recycle != nil {
				c.recycle(oldBuf, cap(oldBuf))
			}
		}
	}
	if c.record != nil {
		c.record(wasDelta, state.CBuf, state.UncompressedSize)
	}
}

// Stop signals shutdown, wakes both condition variables, joins the
// worker, then drains both queues: pending jobs and results are dropped
// and their slots' CompressPending flags cleared. After Stop returns the
// Compressor may be Start-ed again.
func (c *Compressor) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.cvJobs.Broadcast()
	c.cvDone.Broadcast()
	c.mu.Unlock()

	<-c.done

	c.mu.Lock()
	for _, job := range c.jobs {
		job.State.CompressPending = false
		delete(c.pending, job.State)
	}
	c.jobs = nil
	for _, res := range c.results {
		res.State.CompressPending = false
		delete(c.pending, res.State)
	}
	c.results = nil
	c.jobsMax, c.resultsMax = 0, 0
	c.shutdown = false
	c.started = false
	c.mu.Unlock()
}

// Stats reports the queue depths and watermarks the external statistics
// surface exposes.
func (c *Compressor) Stats() (jobLen, resultLen, jobMax, resultMax, pendingCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs), len(c.results), c.jobsMax, c.resultsMax, len(c.pending)
}
