package stats

import (
	"math"
	"testing"
)

func sumProb(samples []Sample) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s.Probability
	}
	return sum
}

func TestAllSamplesUniform(t *testing.T) {
	d := NewAllSamples(false)
	d.AddSample(1)
	d.AddSample(2)
	d.AddSample(3)

	samples := d.Samples()
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for _, s := range samples {
		if math.Abs(s.Probability-1.0/3.0) > 1e-9 {
			t.Fatalf("expected uniform probability 1/3, got %v", s.Probability)
		}
	}
	if math.Abs(sumProb(samples)-1.0) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1, got %v", sumProb(samples))
	}
}

func TestAllSamplesWeightedFavorsRecent(t *testing.T) {
	d := NewAllSamples(true)
	d.AddSample(1)
	d.AddSample(2)

	samples := d.Samples()
	if samples[1].Probability <= samples[0].Probability {
		t.Fatalf("expected most recent sample to carry more weight: %+v", samples)
	}
	if math.Abs(sumProb(samples)-1.0) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1, got %v", sumProb(samples))
	}
}

func TestAllSamplesEvictsOldest(t *testing.T) {
	d := NewAllSamples(false)
	for i := 0; i < MaxSamples+5; i++ {
		d.AddSample(float64(i))
	}
	samples := d.Samples()
	if len(samples) != MaxSamples {
		t.Fatalf("expected ring buffer capped at %d, got %d", MaxSamples, len(samples))
	}
	if samples[0].Value != 5 {
		t.Fatalf("expected oldest surviving sample to be 5, got %v", samples[0].Value)
	}
	if d.TotalCount() != int64(MaxSamples+5) {
		t.Fatalf("expected total count to track all additions, got %d", d.TotalCount())
	}
}

func TestBinnedWithRangeHints(t *testing.T) {
	d := NewBinned()
	d.SetRangeHints(0, 10, 5) // bins of width 2: [0,2) [2,4) [4,6) [6,8) [8,10)

	d.AddSample(-1) // below range: tail-low
	d.AddSample(1)  // interior bin 0
	d.AddSample(5)  // interior bin
	d.AddSample(20) // above range: tail-high

	samples := d.Samples()
	if math.Abs(sumProb(samples)-1.0) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1, got %v", sumProb(samples))
	}
	if d.TotalCount() != 4 {
		t.Fatalf("expected 4 total samples, got %d", d.TotalCount())
	}

	// first sample should be the tail-low running mean (-1).
	if samples[0].Value != -1 {
		t.Fatalf("expected tail-low representative -1, got %v", samples[0].Value)
	}
	// last sample should be the tail-high running mean (20).
	if samples[len(samples)-1].Value != 20 {
		t.Fatalf("expected tail-high representative 20, got %v", samples[len(samples)-1].Value)
	}
}

func TestBinnedAutoFitsAfterThreshold(t *testing.T) {
	d := NewBinned()
	for i := 0; i < autoFitThreshold-1; i++ {
		d.AddSample(float64(i % 10))
	}
	if d.fitted {
		t.Fatal("expected distribution unfitted before threshold")
	}
	d.AddSample(5)
	if !d.fitted {
		t.Fatal("expected distribution to auto-fit once threshold is reached")
	}

	samples := d.Samples()
	if math.Abs(sumProb(samples)-1.0) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1 after auto-fit, got %v", sumProb(samples))
	}
}

func TestBinnedRunningMeanTail(t *testing.T) {
	d := NewBinned()
	d.SetRangeHints(0, 10, 5)
	d.AddSample(-1)
	d.AddSample(-3)

	samples := d.Samples()
	if samples[0].Value != -2 {
		t.Fatalf("expected tail-low running mean -2, got %v", samples[0].Value)
	}
}
