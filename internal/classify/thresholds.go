package classify

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regionmap/internal/series"
)

// MaxDecimalPlaces bounds the precision thresholds and labels are rounded to.
const MaxDecimalPlaces = 5

// Fallback range used when a series has no usable spread.
const (
	FallbackMin = 0.0
	FallbackMax = 100.0
)

// Unit returns one unit of the given decimal precision, e.g. 0.01 for 2.
func Unit(decimals int) float64 {
	return math.Pow(10, -float64(clampDecimals(decimals)))
}

func clampDecimals(d int) int {
	if d < 0 {
		return 0
	}
	if d > MaxDecimalPlaces {
		return MaxDecimalPlaces
	}
	return d
}

func roundTo(v float64, decimals int, f func(float64) float64) float64 {
	p := math.Pow(10, float64(clampDecimals(decimals)))
	// Scale first so values already on the grid survive floor/ceil despite
	// binary representation error.
	scaled := math.Round(v*p*1e6) / 1e6
	return f(scaled) / p
}

// DefaultThresholds spaces n+1 bounds evenly across the valid values. The
// lowest bound rounds down and the highest up so every value stays inside;
// interior bounds round to the nearest unit. An empty, all-missing or
// constant series uses the range [0, 100].
func DefaultThresholds(values []series.Value, n, decimals int) ([]float64, error) {
	if err := CheckCount(n); err != nil {
		return nil, err
	}
	lo, hi, ok := series.Range(values)
	if !ok || lo == hi {
		lo, hi = FallbackMin, FallbackMax
	}

	step := (hi - lo) / float64(n)
	t := make([]float64, n+1)
	for i := range t {
		switch i {
		case 0:
			t[i] = roundTo(lo, decimals, math.Floor)
		case n:
			t[i] = roundTo(hi, decimals, math.Ceil)
		default:
			t[i] = roundTo(lo+float64(i)*step, decimals, math.Round)
		}
	}
	return NormalizeThresholds(t, decimals)
}

// NormalizeThresholds nudges each bound that does not exceed its predecessor
// up to the predecessor plus one unit of precision, cascading upward, then
// validates the result. The input is not modified.
func NormalizeThresholds(thresholds []float64, decimals int) ([]float64, error) {
	t := make([]float64, len(thresholds))
	copy(t, thresholds)
	unit := Unit(decimals)
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			t[i] = roundTo(t[i-1]+unit, decimals, math.Round)
		}
	}
	if err := ValidateThresholds(t, len(t)-1); err != nil {
		return nil, err
	}
	return t, nil
}

// ValidateThresholds checks that thresholds holds n+1 finite, strictly
// increasing bounds.
func ValidateThresholds(thresholds []float64, n int) error {
	if len(thresholds) != n+1 {
		return eris.Wrapf(ErrInvalidThresholds, "classify: got %d thresholds for %d bins, want %d", len(thresholds), n, n+1)
	}
	if err := CheckCount(n); err != nil {
		return err
	}
	for i, v := range thresholds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Wrapf(ErrInvalidThresholds, "classify: threshold %d is not finite", i)
		}
		if i > 0 && v <= thresholds[i-1] {
			return eris.Wrapf(ErrInvalidThresholds, "classify: threshold %d (%v) does not exceed threshold %d (%v)", i, v, i-1, thresholds[i-1])
		}
	}
	return nil
}

// Input describes one editable threshold with the limits its neighbours
// impose. Min and Max are nil for the outermost bounds.
type Input struct {
	Index int      `json:"index"`
	Value float64  `json:"value"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// Inputs returns the editing limits for every threshold: each must stay at
// least one unit above its lower neighbour and one unit below its upper one.
func Inputs(thresholds []float64, decimals int) []Input {
	unit := Unit(decimals)
	out := make([]Input, len(thresholds))
	for i, v := range thresholds {
		in := Input{Index: i, Value: v}
		if i > 0 {
			lo := roundTo(thresholds[i-1]+unit, decimals, math.Round)
			in.Min = &lo
		}
		if i < len(thresholds)-1 {
			hi := roundTo(thresholds[i+1]-unit, decimals, math.Round)
			in.Max = &hi
		}
		out[i] = in
	}
	return out
}

// SetThreshold returns a copy of thresholds with bound i replaced by v. A
// value that would cross a neighbour is rejected.
func SetThreshold(thresholds []float64, i int, v float64, decimals int) ([]float64, error) {
	if i < 0 || i >= len(thresholds) {
		return nil, eris.Wrapf(ErrInvalidThresholds, "classify: threshold index %d out of range", i)
	}
	in := Inputs(thresholds, decimals)[i]
	v = roundTo(v, decimals, math.Round)
	if (in.Min != nil && v < *in.Min) || (in.Max != nil && v > *in.Max) {
		return nil, eris.Wrapf(ErrInvalidThresholds, "classify: threshold %d value %v crosses a neighbour", i, v)
	}
	t := make([]float64, len(thresholds))
	copy(t, thresholds)
	t[i] = v
	return t, nil
}
