package inputqueue

import "testing"

func input(frame int, b byte) GameInput {
	return GameInput{Frame: frame, Bits: []byte{b}}
}

func TestAddInputThenGetConfirmed(t *testing.T) {
	q := New(0, 1)
	q.AddInput(input(0, 1))
	q.AddInput(input(1, 2))

	got, ok := q.GetConfirmedInput(1)
	if !ok {
		t.Fatalf("expected confirmed input at frame 1")
	}
	if got.Bits[0] != 2 {
		t.Fatalf("expected bits=2, got %v", got.Bits)
	}
	if q.LastConfirmedFrame() != 1 {
		t.Fatalf("expected last confirmed frame 1, got %d", q.LastConfirmedFrame())
	}
}

func TestGetInputPredictsBeyondConfirmed(t *testing.T) {
	q := New(0, 1)
	q.AddInput(input(0, 7))

	predicted, ok := q.GetInput(3)
	if !ok {
		t.Fatalf("expected prediction to succeed")
	}
	if predicted.Bits[0] != 7 {
		t.Fatalf("expected predicted bits to repeat last confirmed input, got %v", predicted.Bits)
	}
	if _, ok := q.GetConfirmedInput(3); ok {
		t.Fatalf("frame 3 should not be reported confirmed yet")
	}
}

func TestConfirmedInputContradictingPredictionSetsFirstIncorrectFrame(t *testing.T) {
	q := New(0, 1)
	q.AddInput(input(0, 1))

	if _, ok := q.GetInput(1); !ok {
		t.Fatalf("expected prediction for frame 1")
	}

	q.AddInput(input(1, 9))
	if q.GetFirstIncorrectFrame() != 1 {
		t.Fatalf("expected first incorrect frame 1, got %d", q.GetFirstIncorrectFrame())
	}

	confirmed, ok := q.GetConfirmedInput(1)
	if !ok || confirmed.Bits[0] != 9 {
		t.Fatalf("expected confirmed input to overwrite the prediction, got %+v ok=%v", confirmed, ok)
	}
}

func TestConfirmedInputMatchingPredictionLeavesFirstIncorrectFrameUnset(t *testing.T) {
	q := New(0, 1)
	q.AddInput(input(0, 5))
	q.GetInput(1) // predict frame 1 as a repeat of frame 0
	q.AddInput(input(1, 5))

	if q.GetFirstIncorrectFrame() != NullFrame {
		t.Fatalf("expected no incorrect frame, got %d", q.GetFirstIncorrectFrame())
	}
}

func TestFrameDelayShiftsStorageFrame(t *testing.T) {
	q := New(0, 1)
	q.SetFrameDelay(2)

	stored := q.AddInput(input(0, 1))
	if stored != 2 {
		t.Fatalf("expected storage frame 2, got %d", stored)
	}
	if _, ok := q.GetConfirmedInput(0); ok {
		t.Fatalf("frame 0 should not be directly confirmed under delay")
	}
	if _, ok := q.GetConfirmedInput(1); ok {
		t.Fatalf("gap frame 1 should be held as a prediction, not a confirmed input")
	}
	gap, ok := q.GetInput(1)
	if !ok || gap.Bits[0] != 0 {
		t.Fatalf("expected gap frame 1 to be filled by repeating the previous input")
	}
}

func TestDiscardConfirmedFramesRetainsAtLeastOne(t *testing.T) {
	q := New(0, 1)
	for i := 0; i < 5; i++ {
		q.AddInput(input(i, byte(i)))
	}
	q.DiscardConfirmedFrames(3)

	if _, ok := q.GetConfirmedInput(3); ok {
		t.Fatalf("expected frame 3 discarded")
	}
	if _, ok := q.GetConfirmedInput(4); !ok {
		t.Fatalf("expected frame 4 retained")
	}

	q.DiscardConfirmedFrames(100)
	if _, ok := q.GetConfirmedInput(4); !ok {
		t.Fatalf("expected at least one entry to survive an aggressive discard")
	}
}

func TestResetPredictionDropsSpeculativeTailAndClearsMarker(t *testing.T) {
	q := New(0, 1)
	q.AddInput(input(0, 1))
	q.GetInput(1)
	q.GetInput(2)
	q.AddInput(input(1, 9)) // contradicts prediction, sets firstIncorrectFrame=1

	q.ResetPrediction(1)

	if q.GetFirstIncorrectFrame() != NullFrame {
		t.Fatalf("expected firstIncorrectFrame cleared, got %d", q.GetFirstIncorrectFrame())
	}
	if _, ok := q.findFrame(2); ok {
		t.Fatalf("expected speculative frame 2 to have been dropped")
	}
}

func TestGameInputEqualIgnoresFrame(t *testing.T) {
	a := input(1, 5)
	b := input(2, 5)
	if !a.Equal(b) {
		t.Fatalf("expected inputs with equal bits but different frames to be Equal")
	}
	c := input(1, 6)
	if a.Equal(c) {
		t.Fatalf("expected inputs with differing bits to be unequal")
	}
}
