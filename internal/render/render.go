// Package render joins normalized series onto boundary sets and produces
// choropleth figures.
package render

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/boundary"
	"github.com/sells-group/regionmap/internal/classify"
	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/series"
)

// Region is one drawn region with its value and presentation.
type Region struct {
	Code   string       `json:"code"`
	Name   string       `json:"name"`
	Value  series.Value `json:"value"`
	Label  string       `json:"label,omitempty"`
	Colour string       `json:"colour"`
	// Bin is the discrete class, -1 in continuous mode or when unclassified.
	Bin int `json:"bin"`
}

// LegendItem is one labelled swatch of a discrete legend.
type LegendItem struct {
	Colour string  `json:"colour"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Label  string  `json:"label"`
}

// RenderedMap is the output for one data column.
type RenderedMap struct {
	Title  string          `json:"title"`
	Column string          `json:"column"`
	Level  geography.Level `json:"level"`
	Mode   classify.Mode   `json:"mode"`
	// Regions carry a classified value.
	Regions []Region `json:"regions"`
	// Missing are data-bearing regions without a usable value.
	Missing []Region `json:"missing"`
	// Background is non-target territory drawn for context only.
	Background []Region `json:"background,omitempty"`
	// Unmatched lists data codes with no boundary.
	Unmatched []string `json:"unmatched,omitempty"`
	// Omitted lists boundary codes whose geometry could not be built.
	Omitted []string     `json:"omitted,omitempty"`
	Legend  []LegendItem `json:"legend,omitempty"`
	Figure  *Figure      `json:"figure"`
}

// Render builds the map for one normalized column over a boundary set.
func Render(data *series.Normalized, set *boundary.Set, spec *classify.ColorSpec, opts Options) (*RenderedMap, error) {
	if data == nil {
		return nil, eris.New("render: no data")
	}
	if set == nil || len(set.Targets()) == 0 {
		return nil, eris.Wrap(boundary.ErrNoBoundaries, "render: empty boundary set")
	}
	if spec == nil {
		return nil, eris.New("render: no colour spec")
	}
	opts = opts.Normalize()

	log := zap.L().With(
		zap.String("component", "render"),
		zap.String("column", data.Name),
		zap.String("level", string(set.Level)),
	)

	values, unmatched, dupes := joinValues(data, set)
	if len(dupes) > 0 {
		log.Warn("render: duplicate codes, first value kept", zap.Strings("codes", dupes))
	}
	if len(unmatched) > 0 {
		log.Info("render: data codes without boundaries", zap.Strings("codes", unmatched))
	}

	m := &RenderedMap{
		Title:     WrapTitle(data.Name, opts.TitleWidth),
		Column:    data.Name,
		Level:     set.Level,
		Mode:      spec.Mode,
		Unmatched: unmatched,
		Omitted:   append([]string(nil), set.Omitted...),
	}

	for _, r := range set.Targets() {
		v := values[r.Code]
		region := Region{Code: r.Code, Name: r.Name, Value: v, Bin: -1}
		colour, ok := spec.Colour(v)
		region.Colour = colour
		if !ok {
			m.Missing = append(m.Missing, region)
			continue
		}
		region.Label = FormatValue(v.Float, opts.Units, opts.DecimalPlaces)
		if spec.Mode == classify.ModeDiscrete {
			region.Bin, _ = classify.ClassifyDiscrete(v.Float, spec.Thresholds)
		}
		m.Regions = append(m.Regions, region)
	}
	for _, r := range set.Background() {
		m.Background = append(m.Background, Region{Code: r.Code, Name: r.Name, Colour: classify.NoDataColour, Bin: -1})
	}
	if spec.Mode == classify.ModeDiscrete {
		m.Legend = legend(spec, opts)
	}

	m.Figure = figure(m, set, spec, opts)

	log.Debug("render: map built",
		zap.Int("regions", len(m.Regions)),
		zap.Int("missing", len(m.Missing)),
		zap.Int("background", len(m.Background)),
	)
	return m, nil
}

// joinValues maps boundary codes to values. Codes are canonicalized; the
// first occurrence of a duplicate wins.
func joinValues(data *series.Normalized, set *boundary.Set) (map[string]series.Value, []string, []string) {
	values := make(map[string]series.Value, len(data.Codes))
	seen := make(map[string]bool, len(data.Codes))
	var unmatched, dupes []string

	for i, raw := range data.Codes {
		code := geography.Canonical(raw)
		if code == "" {
			continue
		}
		if seen[code] {
			dupes = append(dupes, code)
			continue
		}
		seen[code] = true

		r, ok := set.Lookup(code)
		if !ok || r.Role != boundary.RoleRegion {
			unmatched = append(unmatched, code)
			continue
		}
		values[r.Code] = data.Values[i]
	}
	sort.Strings(unmatched)
	return values, unmatched, dupes
}

func legend(spec *classify.ColorSpec, opts Options) []LegendItem {
	bins := spec.Bins()
	items := make([]LegendItem, len(bins))
	for i, b := range bins {
		items[i] = LegendItem{
			Colour: b.Colour,
			Lower:  b.Lower,
			Upper:  b.Upper,
			Label: FormatValue(b.Lower, opts.Units, opts.DecimalPlaces) + " to " +
				FormatValue(b.Upper, opts.Units, opts.DecimalPlaces),
		}
	}
	return items
}

func figure(m *RenderedMap, set *boundary.Set, spec *classify.ColorSpec, opts Options) *Figure {
	fig := &Figure{Layout: baseLayout(opts)}
	fig.Layout.Title = &Title{Text: m.Title, X: 0.5, XAnchor: "center"}
	fig.Layout.Geo = mapGeo()

	if len(m.Background) > 0 {
		fig.Data = append(fig.Data, flatTrace("background", m.Background, set, false))
	}
	if !opts.ShowMissingValues && len(m.Missing) > 0 {
		fig.Data = append(fig.Data, flatTrace("missing", m.Missing, set, true))
	}
	if len(m.Regions) > 0 {
		fig.Data = append(fig.Data, dataTrace(m.Regions, set, spec, opts))
	}

	if spec.Mode == classify.ModeDiscrete {
		addLegend(&fig.Layout, m.Legend, !opts.ShowMissingValues && len(m.Missing) > 0)
	}
	return fig
}

func features(regions []Region, set *boundary.Set) []boundary.Region {
	out := make([]boundary.Region, 0, len(regions))
	for _, r := range regions {
		if br, ok := set.Lookup(r.Code); ok {
			out = append(out, br)
		}
	}
	return out
}

func locations(regions []Region) ([]string, []string) {
	codes := make([]string, len(regions))
	names := make([]string, len(regions))
	for i, r := range regions {
		codes[i] = r.Code
		names[i] = r.Name
	}
	return codes, names
}

// flatTrace draws regions in the no-data grey without a colour scale.
// Missing regions still hover with their name; background never hovers.
func flatTrace(name string, regions []Region, set *boundary.Set, hover bool) Choropleth {
	codes, names := locations(regions)
	tr := Choropleth{
		Type:         "choropleth",
		Name:         name,
		GeoJSON:      boundary.FeatureCollection(features(regions, set)),
		FeatureIDKey: "properties.code",
		Locations:    codes,
		Z:            make([]float64, len(regions)),
		Text:         names,
		Colorscale:   Colorscale{{0, classify.NoDataColour}, {1, classify.NoDataColour}},
		ZMin:         0,
		ZMax:         1,
		ShowScale:    false,
		Marker:       &Marker{Line: MarkerLine{Color: outlineColour, Width: 0.5}},
	}
	if hover {
		tr.HoverTemplate = "<b>%{text}</b><extra></extra>"
	} else {
		tr.HoverInfo = "skip"
	}
	return tr
}

func dataTrace(regions []Region, set *boundary.Set, spec *classify.ColorSpec, opts Options) Choropleth {
	codes, names := locations(regions)
	labels := make([]string, len(regions))
	z := make([]float64, len(regions))
	for i, r := range regions {
		labels[i] = r.Label
		if spec.Mode == classify.ModeDiscrete {
			z[i] = float64(r.Bin)
		} else {
			z[i] = r.Value.Float
		}
	}

	tr := Choropleth{
		Type:          "choropleth",
		Name:          "data",
		GeoJSON:       boundary.FeatureCollection(features(regions, set)),
		FeatureIDKey:  "properties.code",
		Locations:     codes,
		Z:             z,
		Text:          names,
		CustomData:    labels,
		HoverTemplate: "<b>%{text}</b><br>%{customdata}<extra></extra>",
		Marker:        &Marker{Line: MarkerLine{Color: outlineColour, Width: 0.5}},
	}

	if spec.Mode == classify.ModeDiscrete {
		tr.Colorscale = DiscreteColorscale(spec.Colours)
		tr.ZMin = -0.5
		tr.ZMax = float64(len(spec.Colours)) - 0.5
		tr.ShowScale = false
		return tr
	}

	tr.Colorscale = ContinuousColorscale(spec.Ramp())
	tr.ZMin = spec.Min
	tr.ZMax = spec.Max
	tr.ShowScale = true
	tr.ColorBar = &ColorBar{TickFormat: tickFormat(opts.DecimalPlaces), Len: 0.8, Thickness: 15}
	switch {
	case opts.Units == "":
	case prefixUnit(opts.Units):
		tr.ColorBar.TickPrefix = opts.Units
	case opts.Units == "%":
		tr.ColorBar.TickSuffix = opts.Units
	default:
		tr.ColorBar.TickSuffix = " " + opts.Units
	}
	return tr
}

// ContinuousColorscale spaces colours evenly from 0 to 1.
func ContinuousColorscale(colours []string) Colorscale {
	if len(colours) == 1 {
		return Colorscale{{0, colours[0]}, {1, colours[0]}}
	}
	cs := make(Colorscale, len(colours))
	for i, c := range colours {
		cs[i] = [2]any{float64(i) / float64(len(colours)-1), c}
	}
	return cs
}

// DiscreteColorscale gives each of n colours a flat band of width 1/n, so a
// bin index z in [0, n-1] with zmin -0.5 and zmax n-0.5 lands in its band.
func DiscreteColorscale(colours []string) Colorscale {
	n := float64(len(colours))
	cs := make(Colorscale, 0, 2*len(colours))
	for i, c := range colours {
		cs = append(cs,
			[2]any{float64(i) / n, c},
			[2]any{float64(i+1) / n, c},
		)
	}
	return cs
}

// addLegend draws stacked swatches to the right of the map, highest bin on
// top, each labelled with its inclusive bounds.
func addLegend(layout *Layout, items []LegendItem, noData bool) {
	const (
		x0     = 1.02
		x1     = 1.07
		top    = 0.95
		height = 0.07
		gap    = 0.02
	)
	layout.Margin.R = legendMarginRight

	row := 0
	swatch := func(colour, label string) {
		y1 := top - float64(row)*(height+gap)
		y0 := y1 - height
		layout.Shapes = append(layout.Shapes, Shape{
			Type: "rect", XRef: "paper", YRef: "paper",
			X0: x0, X1: x1, Y0: y0, Y1: y1,
			FillColor: colour,
			Line:      MarkerLine{Color: "#666666", Width: 0.5},
		})
		layout.Annotations = append(layout.Annotations, Annotation{
			Text: label, XRef: "paper", YRef: "paper",
			X: x1 + 0.01, Y: (y0 + y1) / 2,
			XAnchor: "left", YAnchor: "middle", Align: "left",
		})
		row++
	}

	for i := len(items) - 1; i >= 0; i-- {
		swatch(items[i].Colour, items[i].Label)
	}
	if noData {
		swatch(classify.NoDataColour, "No data")
	}
}
