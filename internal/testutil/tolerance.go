package testutil

import (
	"fmt"
	"math"
	"testing"
)

// RequireSliceNearlyEqual fails t at the worst sample when got and want
// differ by more than eps, or when their lengths differ.
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	diff, err := MaxAbsDiff(got, want)
	if err != nil {
		t.Fatal(err)
	}
	if diff > eps || math.IsNaN(diff) {
		i := worstIndex(got, want)
		t.Fatalf("sample %d: got %v, want %v (diff %v > %v)", i, got[i], want[i], diff, eps)
	}
}

// RequireChannelsNearlyEqual applies RequireSliceNearlyEqual per channel of
// a multichannel render.
func RequireChannelsNearlyEqual(t *testing.T, got, want [][]float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("channel count: got %d, want %d", len(got), len(want))
	}
	for ch := range got {
		diff, err := MaxAbsDiff(got[ch], want[ch])
		if err != nil {
			t.Fatalf("channel %d: %v", ch, err)
		}
		if diff > eps || math.IsNaN(diff) {
			i := worstIndex(got[ch], want[ch])
			t.Fatalf("channel %d sample %d: got %v, want %v (diff %v > %v)", ch, i, got[ch][i], want[ch][i], diff, eps)
		}
	}
}

// RequireFinite fails t on the first NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("sample %d: non-finite value %v", i, v)
		}
	}
}

// MaxAbsDiff returns the largest absolute sample difference.
func MaxAbsDiff(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}
	i := worstIndex(a, b)
	if i < 0 {
		return 0, nil
	}
	return math.Abs(a[i] - b[i]), nil
}

// worstIndex returns the sample where a and b differ most, or -1 when both
// are empty. A NaN on either side counts as the worst sample.
func worstIndex(a, b []float64) int {
	worst, at := -1.0, -1
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if math.IsNaN(d) {
			return i
		}
		if d > worst {
			worst, at = d, i
		}
	}
	return at
}
