package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionmap/internal/boundary"
	"github.com/sells-group/regionmap/internal/classify"
	"github.com/sells-group/regionmap/internal/config"
	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/render"
	"github.com/sells-group/regionmap/internal/table"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func writeBoundaries(t *testing.T, path, codeKey, nameKey string, features map[string][2]any) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for code, f := range features {
		feat := geojson.NewFeature(f[1].(orb.Polygon))
		feat.Properties[codeKey] = code
		feat.Properties[nameKey] = f[0].(string)
		fc.Append(feat)
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// writeReference lays out two 2x2 grids of unit squares:
//
//	TLL11 | TLM11        E09000001 | E06000001
//	TLC11 | TLC12        E08000001 | E08000002
func writeReference(t *testing.T) config.ReferenceConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.ReferenceConfig{
		ITLBoundaries: filepath.Join(dir, "itl3.geojson"),
		LABoundaries:  filepath.Join(dir, "lad.geojson"),
		ITLMapping:    filepath.Join(dir, "itl.csv"),
		MCAMapping:    filepath.Join(dir, "mca.csv"),
	}

	writeBoundaries(t, cfg.ITLBoundaries, "ITL321CD", "ITL321NM", map[string][2]any{
		"TLC11": {"Hartlepool", square(0, 0)},
		"TLC12": {"South Teesside", square(1, 0)},
		"TLL11": {"Isle of Anglesey", square(0, 1)},
		"TLM11": {"Inverclyde", square(1, 1)},
	})
	writeBoundaries(t, cfg.LABoundaries, "LAD23CD", "LAD23NM", map[string][2]any{
		"E08000001": {"Bolton", square(0, 0)},
		"E08000002": {"Bury", square(1, 0)},
		"E09000001": {"City of London", square(0, 1)},
		"E06000001": {"Hartlepool", square(1, 1)},
	})

	require.NoError(t, os.WriteFile(cfg.ITLMapping, []byte(
		"itl1,itl1name,itl2,itl2name,itl3,itl3name\n"+
			"TLC,North East,TLC1,Tees Valley,TLC11,Hartlepool and Stockton-on-Tees\n"+
			"TLC,North East,TLC1,Tees Valley,TLC12,South Teesside\n"+
			"TLL,Wales,TLL1,West Wales,TLL11,Isle of Anglesey\n"+
			"TLM,Scotland,TLM1,West Central Scotland,TLM11,Inverclyde\n"), 0644))
	require.NoError(t, os.WriteFile(cfg.MCAMapping, []byte(
		"la,laname,mca,mcaname\n"+
			"E08000001,Bolton,E47000001,Greater Manchester\n"+
			"E08000002,Bury,E47000001,Greater Manchester\n"+
			"E09000001,City of London,,\n"+
			"E06000001,Hartlepool,,\n"), 0644))
	return cfg
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ref, err := LoadReference(context.Background(), writeReference(t))
	require.NoError(t, err)
	return New(ref, 0)
}

func readTable(t *testing.T, csv string) *table.Table {
	t.Helper()
	tbl, err := table.ReadCSV("data.csv", []byte(csv))
	require.NoError(t, err)
	return tbl
}

func optionsWithUnits(units string) render.Options {
	opts := render.DefaultOptions()
	opts.Units = units
	return opts
}

func optionsWithDecimals(decimals int) render.Options {
	opts := render.DefaultOptions()
	opts.DecimalPlaces = decimals
	return opts
}

func TestLoadReference(t *testing.T) {
	ref, err := LoadReference(context.Background(), writeReference(t))
	require.NoError(t, err)

	require.NotNil(t, ref.ITL)
	require.NotNil(t, ref.LA)
	assert.Len(t, ref.ITL.Features, 4)
	assert.Len(t, ref.LA.Features, 4)
	assert.Equal(t, 4, ref.ITLMapping.Len())

	u, ok := ref.MCAMapping.Parent("E09000001", geography.LevelMCA)
	require.True(t, ok)
	assert.Equal(t, geography.GreaterLondonCode, u.Code)

	assert.Equal(t, []geography.Level{
		geography.LevelITL1, geography.LevelITL2, geography.LevelITL3,
		geography.LevelLA, geography.LevelMCA,
	}, ref.Levels())
}

func TestLoadReference_PartialConfig(t *testing.T) {
	cfg := writeReference(t)
	cfg.LABoundaries = ""
	cfg.MCAMapping = ""
	cfg.ITLMapping = ""

	ref, err := LoadReference(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, ref.LA)
	assert.Equal(t, []geography.Level{geography.LevelITL3}, ref.Levels())
}

func TestLoadReference_Errors(t *testing.T) {
	_, err := LoadReference(context.Background(), config.ReferenceConfig{})
	assert.True(t, eris.Is(err, boundary.ErrNoBoundaries))

	cfg := writeReference(t)
	cfg.ITLMapping = filepath.Join(t.TempDir(), "missing.csv")
	_, err = LoadReference(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: open mapping")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LoadReference(ctx, writeReference(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender_ITL1Scenario(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,GVA\nTLC,10\nTLL,20\nTLM,30\n")

	res, err := p.Render(RenderRequest{Table: tbl})
	require.NoError(t, err)

	assert.Equal(t, geography.LevelITL1, res.Level)
	require.Len(t, res.Maps, 1)
	assert.Equal(t, []string{"GVA"}, res.Titles)

	m := res.Maps[0]
	assert.Len(t, m.Regions, 3)
	assert.Empty(t, m.Missing)
	assert.Empty(t, m.Background)
	assert.Equal(t, classify.ModeDiscrete, m.Mode)
	assert.Len(t, m.Legend, classify.DefaultColours)
}

func TestRender_NationalRollup(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Exports\nTLB,100\nTLL,20\nTLM,30\n")

	res, err := p.Render(RenderRequest{Table: tbl})
	require.NoError(t, err)
	m := res.Maps[0]

	var codes []string
	for _, r := range m.Regions {
		codes = append(codes, r.Code)
	}
	assert.ElementsMatch(t, []string{"TLB", "TLL", "TLM"}, codes)
	assert.Empty(t, m.Missing)
	assert.Empty(t, m.Unmatched)
}

func TestRender_MCABackground(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Jobs\nE47000001,5\nE61000001,7\n")

	res, err := p.Render(RenderRequest{Table: tbl})
	require.NoError(t, err)
	assert.Equal(t, geography.LevelMCA, res.Level)

	m := res.Maps[0]
	assert.Len(t, m.Regions, 2)
	assert.Empty(t, m.Missing)
	require.Len(t, m.Background, 1)
	assert.Equal(t, boundary.NonMCACode, m.Background[0].Code)
}

func TestRender_MixedLevels(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Value\nTLC,1\nTLL,2\nTLC11,3\nTLC12,4\n")

	_, err := p.Render(RenderRequest{Table: tbl})
	assert.True(t, eris.Is(err, geography.ErrAmbiguousLevel))

	res, err := p.Render(RenderRequest{Table: tbl, Settings: Settings{Level: geography.LevelITL3}})
	require.NoError(t, err)
	m := res.Maps[0]
	assert.Len(t, m.Regions, 2)
	// ITL3 regions without a row are missing, not dropped.
	assert.Len(t, m.Missing, 2)

	_, err = p.Render(RenderRequest{Table: tbl, Settings: Settings{Level: geography.LevelLA}})
	assert.Error(t, err)
}

func TestRender_UnrecognizedGeography(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Value\nTLC,1\nXYZ,2\n")

	_, err := p.Render(RenderRequest{Table: tbl})
	require.Error(t, err)
	assert.True(t, eris.Is(err, geography.ErrUnrecognized))
}

func TestRender_TopBinClosed(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Share\nTLC,0\nTLL,50\nTLM,90\n")

	res, err := p.Render(RenderRequest{Table: tbl, Settings: Settings{NumColours: 3}})
	require.NoError(t, err)

	m := res.Maps[0]
	require.Len(t, m.Legend, 3)
	assert.InDelta(t, 90, m.Legend[2].Upper, 1e-9)
	for _, r := range m.Regions {
		if r.Code == "TLM" {
			assert.Equal(t, 2, r.Bin)
		}
	}
}

func TestRender_ExplicitSettings(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Pay\nTLC,\"£1,200\"\nTLL,£900\nTLM,n/a\n")

	res, err := p.Render(RenderRequest{Table: tbl, Settings: Settings{
		Colours:    []string{"#ff0000", "#00ff00"},
		Thresholds: []float64{0, 1000, 2000},
	}})
	require.NoError(t, err)

	m := res.Maps[0]
	assert.Len(t, m.Regions, 2)
	require.Len(t, m.Missing, 1)
	assert.Equal(t, "TLM", m.Missing[0].Code)
	for _, r := range m.Regions {
		switch r.Code {
		case "TLC":
			assert.Equal(t, "#00ff00", r.Colour)
		case "TLL":
			assert.Equal(t, "#ff0000", r.Colour)
		}
	}
}

func TestRender_InvalidSettings(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Value\nTLC,1\n")

	tests := []struct {
		name     string
		settings Settings
		target   error
	}{
		{"too many colours", Settings{NumColours: 7}, classify.ErrColourCount},
		{"threshold count", Settings{NumColours: 2, Thresholds: []float64{0, 1}}, classify.ErrInvalidThresholds},
		{"decreasing thresholds", Settings{NumColours: 2, Thresholds: []float64{0, 5, 5}}, classify.ErrInvalidThresholds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Render(RenderRequest{Table: tbl, Settings: tt.settings})
			assert.True(t, eris.Is(err, tt.target), "got %v", err)
		})
	}

	_, err := p.Render(RenderRequest{Table: tbl, Settings: Settings{Mode: "stepped"}})
	assert.Error(t, err)
	_, err = p.Render(RenderRequest{})
	assert.Error(t, err)
}

func TestRender_Continuous(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,Rate\nTLC,1.5\nTLL,2.5\nTLM,\n")

	res, err := p.Render(RenderRequest{Table: tbl, Settings: Settings{
		Mode:    classify.ModeContinuous,
		Options: optionsWithUnits("%"),
	}})
	require.NoError(t, err)

	m := res.Maps[0]
	assert.Equal(t, classify.ModeContinuous, m.Mode)
	assert.Empty(t, m.Legend)
	assert.Len(t, m.Regions, 2)
	assert.Len(t, m.Missing, 1)
	for _, r := range m.Regions {
		assert.Equal(t, -1, r.Bin)
	}
}

func TestRender_Memoized(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,GVA\nTLC,10\nTLL,20\nTLM,30\n")

	first, err := p.Render(RenderRequest{Table: tbl})
	require.NoError(t, err)
	second, err := p.Render(RenderRequest{Table: tbl})
	require.NoError(t, err)
	assert.Same(t, first, second)

	third, err := p.Render(RenderRequest{Table: tbl, Settings: Settings{NumColours: 3}})
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	stats := p.results.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	// Both renders share one ITL1 boundary build.
	assert.Equal(t, 1, p.boundaries.Stats().Entries)
}

func TestForget(t *testing.T) {
	p := newTestPipeline(t)
	keep := readTable(t, "code,GVA\nTLC,10\nTLL,20\n")
	drop := readTable(t, "code,GVA\nTLC,11\nTLL,21\n")
	require.NotEqual(t, keep.Fingerprint, drop.Fingerprint)

	_, err := p.Render(RenderRequest{Table: keep})
	require.NoError(t, err)
	_, err = p.Render(RenderRequest{Table: drop})
	require.NoError(t, err)
	require.Equal(t, 2, p.CacheStats()["renders"].Entries)

	p.Forget(drop.Fingerprint)
	stats := p.CacheStats()
	assert.Equal(t, 1, stats["renders"].Entries)
	assert.Equal(t, 1, stats["boundaries"].Entries)
}

func TestBoundaries_RollupOnlyAffectsITL1(t *testing.T) {
	p := newTestPipeline(t)

	a, err := p.Boundaries(geography.LevelITL2, true)
	require.NoError(t, err)
	b, err := p.Boundaries(geography.LevelITL2, false)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestDefaultThresholds(t *testing.T) {
	p := newTestPipeline(t)
	tbl := readTable(t, "code,GVA,Empty\nTLC,0,\nTLL,50,x\nTLM,100,\n")

	cols, err := p.DefaultThresholds(tbl, Settings{NumColours: 4, Options: optionsWithDecimals(0)})
	require.NoError(t, err)
	require.Len(t, cols, 2)

	assert.Equal(t, "GVA", cols[0].Column)
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, cols[0].Thresholds)
	require.Len(t, cols[0].Inputs, 5)
	assert.Nil(t, cols[0].Inputs[0].Min)
	require.NotNil(t, cols[0].Inputs[1].Min)
	assert.InDelta(t, 1, *cols[0].Inputs[1].Min, 1e-9)
	assert.Len(t, cols[0].Bins, 4)

	// An all-missing column falls back to [0, 100].
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, cols[1].Thresholds)
}

func TestDefaultThresholds_Errors(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.DefaultThresholds(nil, Settings{})
	assert.Error(t, err)

	tbl := readTable(t, "code,Value\nTLC,1\nTLC11,2\n")
	_, err = p.DefaultThresholds(tbl, Settings{})
	assert.True(t, eris.Is(err, geography.ErrAmbiguousLevel))
}
