// Package series holds the data columns of an upload and coerces their raw
// cells into numbers.
package series

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Value is a normalized cell. Valid is false for missing values.
type Value struct {
	Float float64
	Valid bool
}

// Missing is the zero Value.
var Missing = Value{}

// Of returns a valid Value.
func Of(f float64) Value {
	return Value{Float: f, Valid: true}
}

// MarshalJSON encodes missing values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// Series is one named data column keyed by region code. Codes and Raw are
// parallel and never modified after construction.
type Series struct {
	Name  string
	Codes []string
	Raw   []string
}

// New builds a series, copying codes and raw cells.
func New(name string, codes, raw []string) Series {
	s := Series{
		Name:  name,
		Codes: make([]string, len(codes)),
		Raw:   make([]string, len(codes)),
	}
	copy(s.Codes, codes)
	copy(s.Raw, raw)
	return s
}

// Len returns the number of rows.
func (s Series) Len() int {
	return len(s.Codes)
}

// Normalized is a fresh numeric copy of a Series.
type Normalized struct {
	Name   string
	Codes  []string
	Values []Value
	// Missing counts rows whose cell did not parse.
	Missing int
}

// Normalize parses every cell of s. Cells that fail to parse become missing;
// s is not modified.
func (s Series) Normalize() *Normalized {
	n := &Normalized{
		Name:   s.Name,
		Codes:  make([]string, len(s.Codes)),
		Values: make([]Value, len(s.Codes)),
	}
	copy(n.Codes, s.Codes)
	for i := range s.Codes {
		var raw string
		if i < len(s.Raw) {
			raw = s.Raw[i]
		}
		v := Normalize(raw)
		if !v.Valid {
			n.Missing++
		}
		n.Values[i] = v
	}
	return n
}

// Normalize coerces a raw cell into a number. Every character other than
// digits, the decimal point and a leading minus sign is stripped before
// parsing, so exponent letters are dropped like any other text. Cells that
// still fail to parse are missing.
func Normalize(raw string) Value {
	stripped := strip(strings.TrimSpace(raw))
	if stripped == "" || stripped == "-" {
		return Missing
	}
	f, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return Missing
	}
	return finite(f)
}

func finite(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Missing
	}
	return Of(f)
}

// strip keeps digits and decimal points, plus a minus sign seen before the
// first digit.
func strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	negative := false
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
			b.WriteRune(r)
		case r == '.':
			b.WriteRune(r)
		case r == '-' && !digits && b.Len() == 0:
			negative = true
		}
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// Valid returns the parsed values in row order, skipping missing cells.
func (n *Normalized) Valid() []float64 {
	out := make([]float64, 0, len(n.Values)-n.Missing)
	for _, v := range n.Values {
		if v.Valid {
			out = append(out, v.Float)
		}
	}
	return out
}

// Range returns the minimum and maximum valid values. ok is false when every
// value is missing.
func (n *Normalized) Range() (lo, hi float64, ok bool) {
	return Range(n.Values)
}

// Range returns the minimum and maximum of the valid values.
func Range(values []Value) (lo, hi float64, ok bool) {
	for _, v := range values {
		if !v.Valid {
			continue
		}
		if !ok {
			lo, hi, ok = v.Float, v.Float, true
			continue
		}
		lo = math.Min(lo, v.Float)
		hi = math.Max(hi, v.Float)
	}
	return lo, hi, ok
}
