package boundary

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionmap/internal/geography"
)

// Reference fixture laid out as a 2x2 grid of unit squares:
//
//	TLL11 | TLM11
//	TLC11 | TLC12
func itlFixture(t *testing.T) (*Source, *geography.MappingTable) {
	t.Helper()
	src := NewSource(geography.LevelITL3, []Feature{
		{Code: "TLC11", Name: "Hartlepool", Geometry: square(0, 0, 1)},
		{Code: "TLC12", Name: "South Teesside", Geometry: square(1, 0, 1)},
		{Code: "TLL11", Name: "Isle of Anglesey", Geometry: square(0, 1, 1)},
		{Code: "TLM11", Name: "Inverclyde", Geometry: square(1, 1, 1)},
	})
	mapping, err := geography.LoadITLMapping(strings.NewReader(
		"itl1,itl1name,itl2,itl2name,itl3,itl3name\n" +
			"TLC,North East,TLC1,Tees Valley,TLC11,Hartlepool and Stockton-on-Tees\n" +
			"TLC,North East,TLC1,Tees Valley,TLC12,South Teesside\n" +
			"TLL,Wales,TLL1,West Wales,TLL11,Isle of Anglesey\n" +
			"TLM,Scotland,TLM1,West Central Scotland,TLM11,Inverclyde\n",
	))
	require.NoError(t, err)
	return src, mapping
}

// Local Authority fixture:
//
//	E09000001 | E06000001
//	E08000001 | E08000002
func laFixture(t *testing.T) (*Source, *geography.MappingTable) {
	t.Helper()
	src := NewSource(geography.LevelLA, []Feature{
		{Code: "E08000001", Name: "Bolton", Geometry: square(0, 0, 1)},
		{Code: "E08000002", Name: "Bury", Geometry: square(1, 0, 1)},
		{Code: "E09000001", Name: "City of London", Geometry: square(0, 1, 1)},
		{Code: "E06000001", Name: "Hartlepool", Geometry: square(1, 1, 1)},
	})
	mapping, err := geography.LoadMCAMapping(strings.NewReader(
		"la,laname,mca,mcaname\n" +
			"E08000001,Bolton,E47000001,Greater Manchester\n" +
			"E08000002,Bury,E47000001,Greater Manchester\n" +
			"E09000001,City of London,,\n" +
			"E06000001,Hartlepool,,\n",
	))
	require.NoError(t, err)
	return src, mapping
}

func orbBowtie() orb.MultiPolygon {
	return orb.MultiPolygon{{{{0, 1}, {1, 2}, {1, 1}, {0, 2}, {0, 1}}}}
}

func newTestAggregator(t *testing.T, tolerance float64) *Aggregator {
	t.Helper()
	itl, itlMap := itlFixture(t)
	la, mcaMap := laFixture(t)
	return NewAggregator(AggregatorConfig{
		ITL:        itl,
		LA:         la,
		ITLMapping: itlMap,
		MCAMapping: mcaMap,
		Tolerance:  tolerance,
	})
}

func codes(set *Set) []string {
	out := make([]string, 0, set.Len())
	for _, r := range set.Regions {
		out = append(out, r.Code)
	}
	return out
}

func TestAggregator_Build(t *testing.T) {
	tests := []struct {
		name     string
		level    geography.Level
		national bool
		codes    []string
		names    map[string]string
		areas    map[string]float64
	}{
		{
			name:  "ITL3 base level is not unioned",
			level: geography.LevelITL3,
			codes: []string{"TLC11", "TLC12", "TLL11", "TLM11"},
			names: map[string]string{"TLC11": "Hartlepool and Stockton-on-Tees"},
			areas: map[string]float64{"TLC11": 1, "TLC12": 1},
		},
		{
			name:  "ITL2",
			level: geography.LevelITL2,
			codes: []string{"TLC1", "TLL1", "TLM1"},
			names: map[string]string{"TLC1": "Tees Valley", "TLM1": "West Central Scotland"},
			areas: map[string]float64{"TLC1": 2, "TLL1": 1},
		},
		{
			name:  "ITL1",
			level: geography.LevelITL1,
			codes: []string{"TLC", "TLL", "TLM"},
			names: map[string]string{"TLC": "North East", "TLL": "Wales"},
			areas: map[string]float64{"TLC": 2},
		},
		{
			name:     "ITL1 national rollup merges England",
			level:    geography.LevelITL1,
			national: true,
			codes:    []string{"TLB", "TLL", "TLM"},
			names:    map[string]string{"TLB": EnglandName, "TLM": "Scotland"},
			areas:    map[string]float64{"TLB": 2, "TLM": 1},
		},
		{
			name:     "national rollup ignored below ITL1",
			level:    geography.LevelITL2,
			national: true,
			codes:    []string{"TLC1", "TLL1", "TLM1"},
		},
		{
			name:  "LA base level",
			level: geography.LevelLA,
			codes: []string{"E06000001", "E08000001", "E08000002", "E09000001"},
			names: map[string]string{"E08000002": "Bury"},
			areas: map[string]float64{"E08000001": 1},
		},
		{
			name:  "MCA with background",
			level: geography.LevelMCA,
			codes: []string{"E47000001", geography.GreaterLondonCode, NonMCACode},
			names: map[string]string{
				"E47000001":                 "Greater Manchester",
				geography.GreaterLondonCode: geography.GreaterLondonName,
				NonMCACode:                  NonMCAName,
			},
			areas: map[string]float64{"E47000001": 2, geography.GreaterLondonCode: 1, NonMCACode: 1},
		},
	}

	agg := newTestAggregator(t, DefaultTolerance)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := agg.Build(tt.level, tt.national)
			require.NoError(t, err)
			assert.Equal(t, tt.level, set.Level)
			assert.Equal(t, tt.codes, codes(set))
			assert.Empty(t, set.Omitted)

			for code, name := range tt.names {
				r, ok := set.Lookup(code)
				require.True(t, ok, code)
				assert.Equal(t, name, r.Name)
			}
			for code, want := range tt.areas {
				r, ok := set.Lookup(code)
				require.True(t, ok, code)
				assert.InDelta(t, want, area(r.Geometry), 1e-9, code)
			}
		})
	}
}

func TestAggregator_MCARoles(t *testing.T) {
	agg := newTestAggregator(t, 0)

	set, err := agg.Build(geography.LevelMCA, false)
	require.NoError(t, err)

	require.Len(t, set.Targets(), 2)
	bg := set.Background()
	require.Len(t, bg, 1)
	assert.Equal(t, NonMCACode, bg[0].Code)
	assert.Equal(t, RoleBackground, bg[0].Role)

	var total float64
	for _, r := range set.Regions {
		total += area(r.Geometry)
	}
	assert.InDelta(t, 4.0, total, 1e-9)
}

func TestAggregator_BaseLevelMatchesInput(t *testing.T) {
	agg := newTestAggregator(t, DefaultTolerance)

	set, err := agg.Build(geography.LevelITL3, false)
	require.NoError(t, err)

	r, ok := set.Lookup("TLC12")
	require.True(t, ok)
	assert.Equal(t, square(1, 0, 1).Bound(), r.Geometry.Bound())
	require.Len(t, r.Geometry, 1)
	assert.Len(t, r.Geometry[0][0], 5)
}

func TestAggregator_UnmappedFeatureDropped(t *testing.T) {
	itl, itlMap := itlFixture(t)
	itl.Features = append(itl.Features, Feature{Code: "TLZ99", Geometry: square(5, 5, 1)})
	agg := NewAggregator(AggregatorConfig{ITL: itl, ITLMapping: itlMap})

	set, err := agg.Build(geography.LevelITL2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"TLC1", "TLL1", "TLM1"}, codes(set))
}

func TestAggregator_InvalidUnionOmitted(t *testing.T) {
	itl, itlMap := itlFixture(t)
	itl.Features[2].Geometry = orbBowtie()
	agg := NewAggregator(AggregatorConfig{ITL: itl, ITLMapping: itlMap})

	set, err := agg.Build(geography.LevelITL2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"TLC1", "TLM1"}, codes(set))
	assert.Equal(t, []string{"TLL1"}, set.Omitted)
}

func TestAggregator_MissingReference(t *testing.T) {
	itl, itlMap := itlFixture(t)
	agg := NewAggregator(AggregatorConfig{ITL: itl, ITLMapping: itlMap})

	_, err := agg.Build(geography.LevelMCA, false)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoBoundaries))

	la, _ := laFixture(t)
	agg = NewAggregator(AggregatorConfig{LA: la})
	_, err = agg.Build(geography.LevelMCA, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no MCA mapping")

	set, err := agg.Build(geography.LevelLA, false)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
}

func TestAggregator_WrongBaseLevel(t *testing.T) {
	itl, itlMap := itlFixture(t)
	itl.Level = geography.LevelITL2
	agg := NewAggregator(AggregatorConfig{ITL: itl, ITLMapping: itlMap})

	_, err := agg.Build(geography.LevelITL1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want ITL3")

	la, laMap := laFixture(t)
	agg = NewAggregator(AggregatorConfig{LA: la, MCAMapping: itlMap})
	_, err = agg.Build(geography.LevelMCA, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping is keyed on ITL3")

	agg = NewAggregator(AggregatorConfig{LA: la, MCAMapping: laMap})
	_, err = agg.Build(geography.LevelMCA, false)
	assert.NoError(t, err)
}
