// Package classify maps normalized values to colours, either along a
// continuous ramp or through discrete threshold bins.
package classify

import (
	"errors"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regionmap/internal/series"
)

// Mode selects continuous or discrete colouring.
type Mode string

// Modes.
const (
	ModeContinuous Mode = "continuous"
	ModeDiscrete   Mode = "discrete"
)

// Colour count limits and defaults.
const (
	MinColours     = 2
	MaxColours     = 6
	DefaultColours = 5
	// DefaultSteps is the number of interpolated colours in a continuous ramp.
	DefaultSteps = 10
	// NoDataColour fills missing and out-of-scope regions.
	NoDataColour = "#d9d9d9"
)

var (
	// ErrInvalidThresholds is returned for thresholds that are not strictly
	// increasing, not finite, or of the wrong count.
	ErrInvalidThresholds = errors.New("classify: invalid thresholds")
	// ErrColourCount is returned when the number of colours is outside
	// MinColours..MaxColours.
	ErrColourCount = errors.New("classify: colour count out of range")
)

// ParseMode converts a user-supplied mode name. Empty means discrete.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDiscrete:
		return ModeDiscrete, nil
	case ModeContinuous:
		return ModeContinuous, nil
	}
	return "", eris.Errorf("classify: unknown mode %q", s)
}

// Bin is one discrete class: values in [Lower, Upper) take Colour, except the
// last bin which also includes Upper.
type Bin struct {
	Index  int     `json:"index"`
	Colour string  `json:"colour"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// ColorSpec describes how values become colours.
type ColorSpec struct {
	Mode    Mode     `json:"mode"`
	Colours []string `json:"colours"`

	// Continuous mode.
	Steps int     `json:"steps,omitempty"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	// Discrete mode: len(Colours)+1 strictly increasing bounds.
	Thresholds []float64 `json:"thresholds,omitempty"`
}

// NewContinuous builds a continuous spec interpolating colours into steps
// across [lo, hi].
func NewContinuous(colours []string, steps int, lo, hi float64) (*ColorSpec, error) {
	cs, err := checkColours(colours)
	if err != nil {
		return nil, err
	}
	if steps < len(cs) {
		steps = len(cs)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, eris.Errorf("classify: continuous range [%v, %v] is not finite", lo, hi)
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return &ColorSpec{Mode: ModeContinuous, Colours: cs, Steps: steps, Min: lo, Max: hi}, nil
}

// NewDiscrete builds a discrete spec. thresholds must hold len(colours)+1
// strictly increasing finite bounds.
func NewDiscrete(colours []string, thresholds []float64) (*ColorSpec, error) {
	cs, err := checkColours(colours)
	if err != nil {
		return nil, err
	}
	if err := ValidateThresholds(thresholds, len(cs)); err != nil {
		return nil, err
	}
	t := make([]float64, len(thresholds))
	copy(t, thresholds)
	return &ColorSpec{
		Mode:       ModeDiscrete,
		Colours:    cs,
		Min:        t[0],
		Max:        t[len(t)-1],
		Thresholds: t,
	}, nil
}

func checkColours(colours []string) ([]string, error) {
	if err := CheckCount(len(colours)); err != nil {
		return nil, err
	}
	out := make([]string, len(colours))
	for i, c := range colours {
		hex, err := ParseColour(c)
		if err != nil {
			return nil, err
		}
		out[i] = hex
	}
	return out, nil
}

// CheckCount validates a number of colours.
func CheckCount(n int) error {
	if n < MinColours || n > MaxColours {
		return eris.Wrapf(ErrColourCount, "classify: got %d colours, want %d to %d", n, MinColours, MaxColours)
	}
	return nil
}

// Bins returns the discrete legend records, one per colour. Continuous specs
// have none.
func (c *ColorSpec) Bins() []Bin {
	if c.Mode != ModeDiscrete {
		return nil
	}
	bins := make([]Bin, len(c.Colours))
	for i, colour := range c.Colours {
		bins[i] = Bin{Index: i, Colour: colour, Lower: c.Thresholds[i], Upper: c.Thresholds[i+1]}
	}
	return bins
}

// Ramp returns the continuous colours interpolated into Steps entries.
func (c *ColorSpec) Ramp() []string {
	ramp, err := Ramp(c.Colours, c.Steps)
	if err != nil {
		return c.Colours
	}
	return ramp
}

// Colour returns the fill for a value. Missing values, and discrete values
// outside every bin, take NoDataColour and report false.
func (c *ColorSpec) Colour(v series.Value) (string, bool) {
	if !v.Valid {
		return NoDataColour, false
	}
	if c.Mode == ModeDiscrete {
		i, ok := ClassifyDiscrete(v.Float, c.Thresholds)
		if !ok {
			return NoDataColour, false
		}
		return c.Colours[i], true
	}
	ramp := c.Ramp()
	pos := ClassifyContinuous(v.Float, c.Min, c.Max)
	return ramp[int(math.Round(pos*float64(len(ramp)-1)))], true
}

// ClassifyContinuous returns v's position in [0,1] along the range [lo, hi].
// Values outside the range clamp to the ends; a zero-width range maps to 0.
func ClassifyContinuous(v, lo, hi float64) float64 {
	if hi <= lo || math.IsNaN(v) {
		return 0
	}
	p := (v - lo) / (hi - lo)
	return math.Max(0, math.Min(1, p))
}

// ClassifyDiscrete returns the bin index i with thresholds[i] <= v <
// thresholds[i+1]. The last bin is closed at the top so v equal to the final
// threshold is classified. ok is false when v lies outside every bin.
func ClassifyDiscrete(v float64, thresholds []float64) (int, bool) {
	n := len(thresholds) - 1
	if n < 1 || math.IsNaN(v) {
		return 0, false
	}
	if v < thresholds[0] || v > thresholds[n] {
		return 0, false
	}
	for i := 0; i < n-1; i++ {
		if v < thresholds[i+1] {
			return i, true
		}
	}
	return n - 1, true
}
