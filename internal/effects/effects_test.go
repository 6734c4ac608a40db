package effects

import (
	"math"
	"testing"
)

func TestSmoothingConvergesToStep(t *testing.T) {
	s := NewSmoothing(0.05)
	var y float32
	for i := 0; i < 1000; i++ {
		y = s.Process(1)
	}
	if math.Abs(float64(y)-1) > 1e-4 {
		t.Fatalf("expected convergence to 1, got %f", y)
	}
}

func TestSmoothingFirstSampleIsScaled(t *testing.T) {
	s := NewSmoothing(0.05)
	if got := s.Process(1); math.Abs(float64(got)-0.05) > 1e-7 {
		t.Fatalf("first output = %f, want 0.05", got)
	}
	if got := s.Process(0); math.Abs(float64(got)-0.0475) > 1e-7 {
		t.Fatalf("second output = %f, want 0.0475", got)
	}
}

func TestSmoothingZeroInputStaysZero(t *testing.T) {
	s := NewSmoothing(0.05)
	for i := 0; i < 64; i++ {
		if y := s.Process(0); y != 0 {
			t.Fatalf("sample %d = %f, want 0", i, y)
		}
	}
}

func TestSmoothingInvalidFactorFallsBack(t *testing.T) {
	if f := NewSmoothing(0).Factor(); f != DefaultSmoothingFactor {
		t.Fatalf("factor = %f, want default", f)
	}
	if f := NewSmoothing(3).Factor(); f != DefaultSmoothingFactor {
		t.Fatalf("factor = %f, want default", f)
	}
}

func TestSmoothingCutoffAlpha(t *testing.T) {
	s := NewSmoothingCutoff(44100, 1000)
	rc := 1.0 / (2 * math.Pi * 1000)
	dt := 1.0 / 44100.0
	want := dt / (rc + dt)
	if math.Abs(float64(s.Factor())-want) > 1e-6 {
		t.Fatalf("alpha = %f, want %f", s.Factor(), want)
	}
}

func TestChainAppliesInOrderAndResets(t *testing.T) {
	a := NewSmoothing(0.5)
	b := NewSmoothing(0.5)
	c := NewChain(a)
	c.Add(b)
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if got := c.Process(1); got != 0.25 {
		t.Fatalf("chained output = %f, want 0.25", got)
	}
	c.Reset()
	if got := c.Process(0); got != 0 {
		t.Fatalf("output after reset = %f, want 0", got)
	}
}

func TestTremoloGainRange(t *testing.T) {
	tr := NewTremolo(100, 0.5, 1) // one cycle per 100 samples
	if !tr.Active() {
		t.Fatalf("expected active tremolo")
	}
	out := make([]float32, 100)
	for i := range out {
		out[i] = tr.Process(1)
	}
	if out[0] != 1 {
		t.Fatalf("gain at phase 0 = %f, want 1", out[0])
	}
	if math.Abs(float64(out[50])-0.5) > 1e-6 {
		t.Fatalf("gain at phase 0.5 = %f, want 0.5", out[50])
	}
	for i, g := range out {
		if g < 0.5-1e-6 || g > 1 {
			t.Fatalf("gain %d = %f outside [0.5, 1]", i, g)
		}
	}
	tr.Reset()
	if g := tr.Process(1); g != 1 {
		t.Fatalf("gain after reset = %f, want 1", g)
	}
}

func TestTremoloInactiveIsTransparent(t *testing.T) {
	for _, tr := range []*Tremolo{NewTremolo(48000, 0, 5), NewTremolo(48000, 0.5, 0)} {
		if tr.Active() {
			t.Fatalf("expected inactive tremolo")
		}
		if y := tr.Process(0.3); y != 0.3 {
			t.Fatalf("inactive tremolo changed input: %f", y)
		}
	}
}

func TestChainWithTremolo(t *testing.T) {
	c := NewChain(NewSmoothing(1))
	c.Add(NewTremolo(100, 1, 25))
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if y := c.Process(0.8); y != 0.8 {
		t.Fatalf("first sample = %f, want 0.8", y)
	}
	c.Process(0.8)
	if y := c.Process(0.8); math.Abs(float64(y)) > 1e-6 {
		t.Fatalf("sample at tremolo trough = %f, want 0", y)
	}
	c.Reset()
	if y := c.Process(0.8); y != 0.8 {
		t.Fatalf("after reset = %f, want 0.8", y)
	}
}
