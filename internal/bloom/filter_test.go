package bloom

import (
	"crypto/sha256"
	"fmt"
	"testing"
)

func hashes(prefix string, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("%x", sha256.Sum256([]byte(fmt.Sprintf("%s-%d", prefix, i))))
	}
	return out
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := NewWithEstimates(10000, 0.01)

	added := hashes("present", 10000)
	for _, h := range added {
		f.Add(h)
	}
	for _, h := range added {
		if !f.Contains(h) {
			t.Fatalf("false negative for %s", h)
		}
	}
	if f.Count() != 10000 {
		t.Errorf("count: got %d, want 10000", f.Count())
	}
}

func TestFilter_FalsePositiveRateNearTarget(t *testing.T) {
	f := NewWithEstimates(10000, 0.01)
	for _, h := range hashes("present", 10000) {
		f.Add(h)
	}

	falsePositives := 0
	probes := hashes("absent", 10000)
	for _, h := range probes {
		if f.Contains(h) {
			falsePositives++
		}
	}

	// At the design point the observed rate should be within a few times
	// the 1% target; a broken hash scheme lands far outside this bound.
	rate := float64(falsePositives) / float64(len(probes))
	if rate > 0.05 {
		t.Errorf("false positive rate too high: %.4f", rate)
	}

	if est := f.FalsePositiveRate(); est <= 0 || est > 0.05 {
		t.Errorf("estimated rate out of range: %.4f", est)
	}
}

func TestFilter_EmptyContainsNothing(t *testing.T) {
	f := New(1024, 7)
	for _, h := range hashes("probe", 100) {
		if f.Contains(h) {
			t.Errorf("empty filter claims to contain %s", h)
		}
	}
	if f.FalsePositiveRate() != 0 {
		t.Errorf("empty filter should estimate a zero rate")
	}
}

func TestFilter_DefensiveSizing(t *testing.T) {
	// Degenerate parameters fall back to workable defaults.
	f := New(0, 0)
	f.Add("x")
	if !f.Contains("x") {
		t.Errorf("fallback-sized filter lost an entry")
	}

	f = NewWithEstimates(-5, 2.0)
	f.Add("y")
	if !f.Contains("y") {
		t.Errorf("fallback-estimated filter lost an entry")
	}
}
