package render

import (
	"github.com/paulmach/orb/geojson"
)

// Figure is a Plotly figure document ready to be serialized to JSON.
type Figure struct {
	Data   []Choropleth `json:"data"`
	Layout Layout       `json:"layout"`
}

// Colorscale is a Plotly colorscale: [[position, colour], ...].
type Colorscale [][2]any

// Choropleth is a Plotly choropleth trace.
type Choropleth struct {
	Type          string                     `json:"type"`
	Name          string                     `json:"name,omitempty"`
	GeoJSON       *geojson.FeatureCollection `json:"geojson"`
	FeatureIDKey  string                     `json:"featureidkey"`
	Locations     []string                   `json:"locations"`
	Z             []float64                  `json:"z"`
	Text          []string                   `json:"text,omitempty"`
	CustomData    []string                   `json:"customdata,omitempty"`
	HoverTemplate string                     `json:"hovertemplate,omitempty"`
	HoverInfo     string                     `json:"hoverinfo,omitempty"`
	Colorscale    Colorscale                 `json:"colorscale"`
	ZMin          float64                    `json:"zmin"`
	ZMax          float64                    `json:"zmax"`
	ShowScale     bool                       `json:"showscale"`
	ColorBar      *ColorBar                  `json:"colorbar,omitempty"`
	Marker        *Marker                    `json:"marker,omitempty"`
}

// ColorBar configures a continuous trace's gradient legend.
type ColorBar struct {
	TickFormat string  `json:"tickformat,omitempty"`
	TickPrefix string  `json:"tickprefix,omitempty"`
	TickSuffix string  `json:"ticksuffix,omitempty"`
	Len        float64 `json:"len,omitempty"`
	Thickness  int     `json:"thickness,omitempty"`
}

// Marker styles region outlines.
type Marker struct {
	Line MarkerLine `json:"line"`
}

// MarkerLine is a region outline.
type MarkerLine struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Layout is the Plotly figure layout.
type Layout struct {
	Title        *Title       `json:"title,omitempty"`
	Geo          *Geo         `json:"geo,omitempty"`
	XAxis        *Axis        `json:"xaxis,omitempty"`
	YAxis        *Axis        `json:"yaxis,omitempty"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Margin       Margin       `json:"margin"`
	PlotBGColor  string       `json:"plot_bgcolor,omitempty"`
	PaperBGColor string       `json:"paper_bgcolor,omitempty"`
	Shapes       []Shape      `json:"shapes,omitempty"`
	Annotations  []Annotation `json:"annotations,omitempty"`
}

// Title is a layout title.
type Title struct {
	Text    string  `json:"text"`
	X       float64 `json:"x"`
	XAnchor string  `json:"xanchor,omitempty"`
}

// Geo configures the map projection and base map chrome.
type Geo struct {
	Projection     Projection `json:"projection"`
	FitBounds      string     `json:"fitbounds,omitempty"`
	Visible        bool       `json:"visible"`
	ShowFrame      bool       `json:"showframe"`
	FrameWidth     float64    `json:"framewidth,omitempty"`
	Resolution     int        `json:"resolution,omitempty"`
	CoastlineColor string     `json:"coastlinecolor,omitempty"`
	BGColor        string     `json:"bgcolor,omitempty"`
}

// Projection selects a flat map projection.
type Projection struct {
	Type string `json:"type"`
}

// Axis is a cartesian axis; only visibility is used.
type Axis struct {
	Visible bool `json:"visible"`
}

// Margin is the figure margin in pixels.
type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

// Shape is a layout shape; legend swatches are paper-referenced rectangles.
type Shape struct {
	Type      string     `json:"type"`
	XRef      string     `json:"xref"`
	YRef      string     `json:"yref"`
	X0        float64    `json:"x0"`
	X1        float64    `json:"x1"`
	Y0        float64    `json:"y0"`
	Y1        float64    `json:"y1"`
	FillColor string     `json:"fillcolor"`
	Line      MarkerLine `json:"line"`
}

// Annotation is a layout text label.
type Annotation struct {
	Text      string  `json:"text"`
	XRef      string  `json:"xref"`
	YRef      string  `json:"yref"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	XAnchor   string  `json:"xanchor"`
	YAnchor   string  `json:"yanchor"`
	ShowArrow bool    `json:"showarrow"`
	Align     string  `json:"align,omitempty"`
}

// Figure dimensions and chrome.
const (
	DefaultWidth      = 800
	DefaultHeight     = 550
	DefaultTitleWidth = 60
	legendMarginRight = 180
	outlineColour     = "#ffffff"
)

func baseLayout(opts Options) Layout {
	return Layout{
		Width:  opts.width(),
		Height: opts.height(),
		Margin: Margin{L: 0, R: 0, T: 50, B: 0},
	}
}

func mapGeo() *Geo {
	return &Geo{
		Projection:     Projection{Type: "mercator"},
		FitBounds:      "locations",
		Visible:        false,
		ShowFrame:      false,
		FrameWidth:     1,
		Resolution:     50,
		CoastlineColor: "#d9d9d9",
	}
}

// Placeholder returns an empty figure sized like a rendered map, shown before
// any data has been supplied.
func Placeholder(opts Options) *Figure {
	layout := baseLayout(opts)
	layout.XAxis = &Axis{Visible: false}
	layout.YAxis = &Axis{Visible: false}
	layout.PlotBGColor = "rgba(0,0,0,0)"
	return &Figure{Data: []Choropleth{}, Layout: layout}
}
