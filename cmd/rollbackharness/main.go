// Command rollbackharness drives the rollback engine against a synthetic,
// deterministic simulation with no network I/O: it exists to exercise
// SaveCurrentFrame/LoadFrame/AdjustSimulation end to end and print the
// resulting stats, the way a soak-test binary would sit next to a library
// with no server of its own.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"rollback"
	"rollback/internal/config"
	"rollback/internal/inputqueue"
	"rollback/internal/telemetry"
)

// harnessSim is a fixed-size byte buffer mutated by a simple LCG. Identical
// input histories always produce identical state and checksum, which is
// what makes rollback correctness observable without a real game attached.
type harnessSim struct {
	state []byte
	frame int
}

func newHarnessSim(stateSize int) *harnessSim {
	return &harnessSim{state: make([]byte, stateSize)}
}

func (s *harnessSim) tick(input byte) {
	for i := range s.state {
		s.state[i] = s.state[i]*31 + input + byte(i)
	}
	s.frame++
}

func (s *harnessSim) checksum() uint32 {
	var sum uint32
	for _, b := range s.state {
		sum = sum*131 + uint32(b)
	}
	return sum
}

type harnessCallbacks struct {
	sim *harnessSim
	log telemetry.Logger
}

func (c *harnessCallbacks) Save(borrowed []byte, frame int) (rollback.SaveResult, bool) {
	var buf []byte
	if cap(borrowed) >= len(c.sim.state) {
		buf = borrowed[:len(c.sim.state)]
	} else {
		buf = make([]byte, len(c.sim.state))
	}
	copy(buf, c.sim.state)
	return rollback.SaveResult{Buf: buf, Checksum: c.sim.checksum()}, true
}

func (c *harnessCallbacks) Load(buf []byte) bool {
	copy(c.sim.state, buf)
	return true
}

func (c *harnessCallbacks) Advance(flags int) bool {
	c.sim.tick(byte(c.sim.frame))
	return true
}

func (c *harnessCallbacks) Free(buf []byte) {}

func main() {
	var (
		ticks         = flag.Int("ticks", 600, "number of frames to simulate")
		stateSize     = flag.Int("state-size", 4096, "synthetic simulation state size in bytes")
		numPlayers    = flag.Int("players", 2, "number of local+remote players")
		inputSize     = flag.Int("input-size", 4, "bytes of input per player per frame")
		mispredictAt  = flag.Int("mispredict-at", 137, "frame at which a remote input contradicts its prediction, 0 to disable")
		asyncCompress = flag.Bool("async", true, "enable the background compression worker")
	)
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := telemetry.NewZap(zapLogger.Sugar())

	cfg := config.FromEnvironment(config.Default(), log)
	cfg.NumPlayers = *numPlayers
	cfg.InputSize = *inputSize
	cfg.AsyncCompress = *asyncCompress

	sim := newHarnessSim(*stateSize)
	cb := &harnessCallbacks{sim: sim, log: log}
	engine := rollback.New(cfg, cb, log)
	defer engine.Close()

	rng := rand.New(rand.NewSource(1))
	zeroInput := make([]byte, *inputSize)

	for frame := 0; frame < *ticks; frame++ {
		if err := engine.AddLocalInput(0, zeroInput); err != nil {
			log.Warnf("frame %d: local input refused: %v", frame, err)
		}
		// Remote input arrives one frame late, so each remote frame is first
		// simulated on a prediction and then confirmed or contradicted.
		if cfg.NumPlayers > 1 && frame > 0 {
			remoteFrame := frame - 1
			remote := zeroInput
			if *mispredictAt > 0 && remoteFrame == *mispredictAt {
				remote = make([]byte, *inputSize)
				remote[0] = 0xFF
				log.Printf("frame %d: injecting mispredicted remote input", remoteFrame)
			}
			engine.AddRemoteInput(1, inputqueue.GameInput{Frame: remoteFrame, Bits: remote})
		}

		inputs := make([][]byte, cfg.NumPlayers)
		for i := range inputs {
			inputs[i] = make([]byte, *inputSize)
		}
		engine.SynchronizeInputs(inputs)

		cb.Advance(0)
		if err := engine.IncrementFrame(); err != nil {
			log.Warnf("frame %d: increment failed: %v", frame, err)
		}

		if err := engine.CheckSimulation(); err != nil {
			log.Warnf("frame %d: rollback failed: %v", frame, err)
		}

		if rng.Intn(97) == 0 {
			snap := engine.Stats()
			log.Printf("frame %d: deltas=%d keyframes=%d ratio(last/avg/max)=%d/%d/%d",
				frame, snap.DeltaFrames, snap.Keyframes,
				snap.DeltaRatioLast, snap.DeltaRatioAvg, snap.DeltaRatioMax)
		}
	}

	final := engine.Stats()
	fmt.Printf("frames=%d deltas=%d keyframes=%d ratio(last/avg/max)=%d/%d/%d checksum=%d\n",
		*ticks, final.DeltaFrames, final.Keyframes,
		final.DeltaRatioLast, final.DeltaRatioAvg, final.DeltaRatioMax, sim.checksum())
}
