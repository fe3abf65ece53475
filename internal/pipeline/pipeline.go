// Package pipeline runs a render pass: geography resolution, boundary
// aggregation, value normalization, classification and rendering.
package pipeline

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/boundary"
	"github.com/sells-group/regionmap/internal/cache"
	"github.com/sells-group/regionmap/internal/classify"
	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/metrics"
	"github.com/sells-group/regionmap/internal/render"
	"github.com/sells-group/regionmap/internal/series"
	"github.com/sells-group/regionmap/internal/table"
)

// Settings are the user-controlled inputs of a render pass. The zero value
// renders discrete maps with the default palette.
type Settings struct {
	// Level selects the geography when the table mixes levels.
	Level      geography.Level `json:"level,omitempty"`
	Mode       classify.Mode   `json:"mode,omitempty"`
	NumColours int             `json:"num_colours,omitempty"`
	Palette    string          `json:"palette,omitempty"`
	// Colours overrides Palette; its length sets the number of colours.
	Colours []string `json:"colours,omitempty"`
	// Thresholds apply to every column in discrete mode. When empty each
	// column gets default thresholds over its own values.
	Thresholds []float64      `json:"thresholds,omitempty"`
	Steps      int            `json:"steps,omitempty"`
	Options    render.Options `json:"options"`
}

// RenderRequest is an immutable render input.
type RenderRequest struct {
	Table *table.Table
	Settings
}

// Result is the ordered output of a render pass: one map per data column.
type Result struct {
	Level  geography.Level        `json:"level"`
	Maps   []*render.RenderedMap `json:"maps"`
	Titles []string               `json:"titles"`
}

// ColumnThresholds are the default discrete bounds for one column with their
// editing limits.
type ColumnThresholds struct {
	Column     string           `json:"column"`
	Thresholds []float64        `json:"thresholds"`
	Inputs     []classify.Input `json:"inputs"`
	Bins       []classify.Bin   `json:"bins"`
}

// Pipeline renders tables against one set of reference data. Boundary sets
// and results are memoized by their inputs; a Pipeline is safe for
// concurrent use.
type Pipeline struct {
	agg        *boundary.Aggregator
	boundaries *cache.Cache
	results    *cache.Cache
	log        *zap.Logger
}

// New creates a Pipeline over ref. tolerance is the boundary simplification
// tolerance.
func New(ref *Reference, tolerance float64) *Pipeline {
	return &Pipeline{
		agg: boundary.NewAggregator(boundary.AggregatorConfig{
			ITL:        ref.ITL,
			LA:         ref.LA,
			ITLMapping: ref.ITLMapping,
			MCAMapping: ref.MCAMapping,
			Tolerance:  tolerance,
		}),
		boundaries: cache.New("boundaries"),
		results:    cache.New("renders"),
		log:        zap.L().With(zap.String("component", "pipeline")),
	}
}

// Boundaries returns the boundary set for level. The national rollup only
// changes ITL1.
func (p *Pipeline) Boundaries(level geography.Level, nationalRollup bool) (*boundary.Set, error) {
	nationalRollup = nationalRollup && level == geography.LevelITL1
	key := cache.Key("boundary", level, nationalRollup)
	return cache.Get(p.boundaries, key, func() (*boundary.Set, error) {
		return p.agg.Build(level, nationalRollup)
	})
}

// Render runs a full pass over every data column of req.Table. Identical
// requests against the same upload return the memoized result.
func (p *Pipeline) Render(req RenderRequest) (*Result, error) {
	if req.Table == nil {
		return nil, eris.New("pipeline: no table")
	}
	settings, err := req.Settings.normalize()
	if err != nil {
		return nil, err
	}

	det, err := req.Table.Detect()
	if err != nil {
		return nil, err
	}
	level, err := det.Choose(settings.Level)
	if err != nil {
		return nil, err
	}
	settings.Level = level

	key := cache.Key(renderPrefix(req.Table.Fingerprint), det.NationalRollup, settings)
	return cache.Get(p.results, key, func() (*Result, error) {
		return p.render(req.Table, det, settings)
	})
}

// Forget drops every memoized result for the upload with fingerprint.
func (p *Pipeline) Forget(fingerprint string) {
	p.results.Invalidate(renderPrefix(fingerprint) + ":")
}

// CacheStats reports hit/miss statistics per cache.
func (p *Pipeline) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"boundaries": p.boundaries.Stats(),
		"renders":    p.results.Stats(),
	}
}

func renderPrefix(fingerprint string) string {
	return "render:" + fingerprint
}

func (p *Pipeline) render(t *table.Table, det geography.Detection, s Settings) (*Result, error) {
	start := time.Now()
	level := s.Level
	log := p.log.With(
		zap.String("table", t.Name),
		zap.String("level", string(level)),
	)

	res, err := p.renderLevel(t, det, s)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RendersTotal.WithLabelValues(string(level), outcome).Inc()
	metrics.RenderDurationMs.WithLabelValues(string(level)).Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		log.Warn("pipeline: render failed", zap.Error(err))
		return nil, err
	}
	log.Info("pipeline: render complete",
		zap.Int("maps", len(res.Maps)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) renderLevel(t *table.Table, det geography.Detection, s Settings) (*Result, error) {
	set, err := p.Boundaries(s.Level, det.NationalRollup)
	if err != nil {
		return nil, err
	}

	filtered := t.Filter(s.Level)
	columns := filtered.Series()
	res := &Result{
		Level:  s.Level,
		Maps:   make([]*render.RenderedMap, 0, len(columns)),
		Titles: make([]string, 0, len(columns)),
	}
	for _, col := range columns {
		data := col.Normalize()
		spec, err := s.colorSpec(data)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: column %q", col.Name)
		}
		m, err := render.Render(data, set, spec, s.Options)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: column %q", col.Name)
		}
		res.Maps = append(res.Maps, m)
		res.Titles = append(res.Titles, col.Name)
	}
	return res, nil
}

// DefaultThresholds returns default discrete bounds for every data column at
// the chosen level.
func (p *Pipeline) DefaultThresholds(t *table.Table, s Settings) ([]ColumnThresholds, error) {
	if t == nil {
		return nil, eris.New("pipeline: no table")
	}
	s, err := s.normalize()
	if err != nil {
		return nil, err
	}
	det, err := t.Detect()
	if err != nil {
		return nil, err
	}
	level, err := det.Choose(s.Level)
	if err != nil {
		return nil, err
	}

	colours, err := s.colours()
	if err != nil {
		return nil, err
	}
	decimals := s.Options.DecimalPlaces

	var out []ColumnThresholds
	for _, col := range t.Filter(level).Series() {
		data := col.Normalize()
		thresholds, err := classify.DefaultThresholds(data.Values, len(colours), decimals)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: column %q", col.Name)
		}
		spec, err := classify.NewDiscrete(colours, thresholds)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: column %q", col.Name)
		}
		out = append(out, ColumnThresholds{
			Column:     col.Name,
			Thresholds: thresholds,
			Inputs:     classify.Inputs(thresholds, decimals),
			Bins:       spec.Bins(),
		})
	}
	return out, nil
}

// normalize fills defaults and validates the colour settings.
func (s Settings) normalize() (Settings, error) {
	mode, err := classify.ParseMode(string(s.Mode))
	if err != nil {
		return s, err
	}
	s.Mode = mode
	if len(s.Colours) > 0 {
		s.NumColours = len(s.Colours)
	}
	if s.NumColours == 0 {
		s.NumColours = classify.DefaultColours
	}
	if err := classify.CheckCount(s.NumColours); err != nil {
		return s, err
	}
	if s.Steps <= 0 {
		s.Steps = classify.DefaultSteps
	}
	s.Options = s.Options.Normalize()
	if len(s.Thresholds) > 0 {
		if s.Mode != classify.ModeDiscrete {
			s.Thresholds = nil
		} else if err := classify.ValidateThresholds(s.Thresholds, s.NumColours); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s Settings) colours() ([]string, error) {
	if len(s.Colours) > 0 {
		out := make([]string, len(s.Colours))
		for i, c := range s.Colours {
			hex, err := classify.ParseColour(c)
			if err != nil {
				return nil, err
			}
			out[i] = hex
		}
		return out, nil
	}
	return classify.Palette(s.Palette, s.NumColours)
}

// colorSpec builds the colour spec for one column. Discrete columns without
// explicit thresholds get defaults over their own values; continuous columns
// span their own valid range.
func (s Settings) colorSpec(data *series.Normalized) (*classify.ColorSpec, error) {
	colours, err := s.colours()
	if err != nil {
		return nil, err
	}
	if s.Mode == classify.ModeContinuous {
		lo, hi, ok := data.Range()
		if !ok {
			lo, hi = classify.FallbackMin, classify.FallbackMax
		}
		return classify.NewContinuous(colours, s.Steps, lo, hi)
	}

	thresholds := s.Thresholds
	if len(thresholds) == 0 {
		thresholds, err = classify.DefaultThresholds(data.Values, len(colours), s.Options.DecimalPlaces)
		if err != nil {
			return nil, err
		}
	}
	return classify.NewDiscrete(colours, thresholds)
}
