// Package geography infers UK geographic taxonomies from region-code shape and
// holds the fine-to-coarse mapping tables used to aggregate boundaries.
package geography

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Taxonomy is the family of geographic codes a region belongs to.
type Taxonomy string

// Taxonomies.
const (
	TaxonomyITL      Taxonomy = "ITL"
	TaxonomyLA       Taxonomy = "LA"
	TaxonomyMCA      Taxonomy = "MCA"
	TaxonomyNational Taxonomy = "National"
)

// Level is a renderable geography level.
type Level string

// Levels, coarsest ITL first.
const (
	LevelITL1 Level = "ITL1"
	LevelITL2 Level = "ITL2"
	LevelITL3 Level = "ITL3"
	LevelLA   Level = "LA"
	LevelMCA  Level = "MCA"
)

// Reserved codes.
const (
	// EnglandCode is the national-rollup sentinel for all of England.
	EnglandCode         = "TLB"
	WalesCode           = "TLL"
	ScotlandCode        = "TLM"
	NorthernIrelandCode = "TLN"

	// GreaterLondonCode is the synthetic MCA assigned to every London borough.
	GreaterLondonCode = "E61000001"
	GreaterLondonName = "Greater London"
)

var levelOrder = map[Level]int{
	LevelITL1: 0,
	LevelITL2: 1,
	LevelITL3: 2,
	LevelLA:   3,
	LevelMCA:  4,
}

// ParseLevel converts a user-supplied level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelOrder[l]; !ok {
		return "", eris.Errorf("geography: unknown level %q", s)
	}
	return l, nil
}

// Taxonomy returns the taxonomy whose boundaries render this level.
func (l Level) Taxonomy() Taxonomy {
	switch l {
	case LevelITL1, LevelITL2, LevelITL3:
		return TaxonomyITL
	case LevelMCA:
		return TaxonomyMCA
	default:
		return TaxonomyLA
	}
}

// Base returns the finest level of the level's taxonomy. Boundaries are always
// loaded at the base level and dissolved upward.
func (l Level) Base() Level {
	if l.Taxonomy() == TaxonomyITL {
		return LevelITL3
	}
	return LevelLA
}

// Geography is the resolved classification of a single region code.
type Geography struct {
	Taxonomy Taxonomy
	Level    Level
}

// ErrUnrecognized is matched by every UnrecognizedError.
var ErrUnrecognized = errors.New("geography not recognized")

// UnrecognizedError reports a region code whose format matches no taxonomy.
type UnrecognizedError struct {
	Code string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("geography: code %q not recognized", e.Code)
}

// Unwrap makes errors.Is(err, ErrUnrecognized) hold.
func (e *UnrecognizedError) Unwrap() error {
	return ErrUnrecognized
}

// Canonical trims whitespace and upper-cases a raw code.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsNation reports whether code is one of the four national aggregate codes.
func IsNation(code string) bool {
	switch code {
	case EnglandCode, WalesCode, ScotlandCode, NorthernIrelandCode:
		return true
	}
	return false
}

// Resolve classifies a region code purely from its shape:
//   - "TL" prefix: ITL1/ITL2/ITL3 by total length 3/4/5
//   - length 9 with prefix E47 or E61: MCA
//   - any other length 9: Local Authority
//
// National aggregate codes resolve to level ITL1 with TaxonomyNational.
func Resolve(code string) (Geography, error) {
	c := Canonical(code)

	if strings.HasPrefix(c, "TL") {
		var level Level
		switch len(c) {
		case 3:
			level = LevelITL1
		case 4:
			level = LevelITL2
		case 5:
			level = LevelITL3
		default:
			return Geography{}, &UnrecognizedError{Code: code}
		}
		if IsNation(c) {
			return Geography{Taxonomy: TaxonomyNational, Level: level}, nil
		}
		return Geography{Taxonomy: TaxonomyITL, Level: level}, nil
	}

	if len(c) == 9 && isAlphanumeric(c) {
		if strings.HasPrefix(c, "E47") || strings.HasPrefix(c, "E61") {
			return Geography{Taxonomy: TaxonomyMCA, Level: LevelMCA}, nil
		}
		return Geography{Taxonomy: TaxonomyLA, Level: LevelLA}, nil
	}

	return Geography{}, &UnrecognizedError{Code: code}
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Detection summarises the geography levels present in a dataset.
type Detection struct {
	Levels         []Level       `json:"levels"`
	Counts         map[Level]int `json:"counts"`
	NationalRollup bool          `json:"national_rollup"`
}

// Ambiguous reports whether the caller must choose a level.
func (d Detection) Ambiguous() bool {
	return len(d.Levels) > 1
}

// ErrAmbiguousLevel is returned when a dataset mixes levels and no level was
// chosen.
var ErrAmbiguousLevel = errors.New("geography: several levels present, choose one")

// Choose picks the level to render. An empty choice is allowed only when a
// single level is present.
func (d Detection) Choose(level Level) (Level, error) {
	if level == "" {
		if d.Ambiguous() {
			return "", eris.Wrapf(ErrAmbiguousLevel, "geography: levels %v", d.Levels)
		}
		if len(d.Levels) == 0 {
			return "", eris.New("geography: no levels detected")
		}
		return d.Levels[0], nil
	}
	if !d.Has(level) {
		return "", eris.Errorf("geography: level %s not present in data (have %v)", level, d.Levels)
	}
	return level, nil
}

// Has reports whether level is present.
func (d Detection) Has(level Level) bool {
	return d.Counts[level] > 0
}

// Detect resolves every code and returns the distinct levels present, ordered
// ITL1, ITL2, ITL3, LA, MCA. Any unrecognized code fails the whole dataset.
// Blank codes are ignored.
func Detect(codes []string) (Detection, error) {
	d := Detection{Counts: make(map[Level]int)}
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		g, err := Resolve(code)
		if err != nil {
			return Detection{}, err
		}
		if d.Counts[g.Level] == 0 {
			d.Levels = append(d.Levels, g.Level)
		}
		d.Counts[g.Level]++
		if Canonical(code) == EnglandCode {
			d.NationalRollup = true
		}
	}
	if len(d.Levels) == 0 {
		return Detection{}, &UnrecognizedError{Code: ""}
	}
	sort.Slice(d.Levels, func(i, j int) bool {
		return levelOrder[d.Levels[i]] < levelOrder[d.Levels[j]]
	})
	return d, nil
}

// FilterRows returns the rows whose first cell resolves to level. The input is
// not modified.
func FilterRows(rows [][]string, level Level) [][]string {
	var out [][]string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		g, err := Resolve(row[0])
		if err != nil || g.Level != level {
			continue
		}
		out = append(out, row)
	}
	return out
}
