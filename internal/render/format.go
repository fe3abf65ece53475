package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/regionmap/internal/classify"
)

// Options are the presentation settings of a render pass.
type Options struct {
	// ShowMissingValues omits the grey layer for missing regions when true.
	ShowMissingValues bool    `json:"show_missing_values" mapstructure:"show_missing_values"`
	Units             string  `json:"units" mapstructure:"units"`
	DecimalPlaces     int     `json:"decimal_places" mapstructure:"decimal_places"`
	MapHeight         float64 `json:"map_height" mapstructure:"map_height"`
	Width             int     `json:"width,omitempty" mapstructure:"width"`
	TitleWidth        int     `json:"title_width,omitempty" mapstructure:"title_width"`
}

// DefaultOptions returns the settings used when the caller supplies none.
func DefaultOptions() Options {
	return Options{
		DecimalPlaces: 1,
		MapHeight:     1,
		Width:         DefaultWidth,
		TitleWidth:    DefaultTitleWidth,
	}
}

// Normalize clamps out-of-range settings and fills zero values with defaults.
func (o Options) Normalize() Options {
	if o.DecimalPlaces < 0 {
		o.DecimalPlaces = 0
	}
	if o.DecimalPlaces > classify.MaxDecimalPlaces {
		o.DecimalPlaces = classify.MaxDecimalPlaces
	}
	if o.MapHeight <= 0 {
		o.MapHeight = 1
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.TitleWidth <= 0 {
		o.TitleWidth = DefaultTitleWidth
	}
	o.Units = NormalizeUnits(o.Units)
	return o
}

func (o Options) width() int {
	if o.Width <= 0 {
		return DefaultWidth
	}
	return o.Width
}

func (o Options) height() int {
	scale := o.MapHeight
	if scale <= 0 {
		scale = 1
	}
	return int(math.Round(DefaultHeight * scale))
}

// NormalizeUnits trims the unit and maps the "None" choice to no unit.
func NormalizeUnits(units string) string {
	u := strings.TrimSpace(units)
	if strings.EqualFold(u, "none") {
		return ""
	}
	return u
}

// prefixUnit reports whether units is a currency symbol written before the
// number.
func prefixUnit(units string) bool {
	switch units {
	case "£", "$", "€", "¥":
		return true
	}
	return false
}

var printer = message.NewPrinter(language.English)

// FormatValue renders v with thousands separators, the given number of
// decimal places, and its unit: currency symbols lead, anything else
// trails ("%" directly, words after a space).
func FormatValue(v float64, units string, decimals int) string {
	units = NormalizeUnits(units)
	if decimals < 0 {
		decimals = 0
	}
	if decimals > classify.MaxDecimalPlaces {
		decimals = classify.MaxDecimalPlaces
	}

	num := printer.Sprintf(fmt.Sprintf("%%.%df", decimals), math.Abs(v))
	sign := ""
	if v < 0 && strings.Trim(num, "0.,") != "" {
		sign = "-"
	}

	switch {
	case units == "":
		return sign + num
	case prefixUnit(units):
		return sign + units + num
	case units == "%":
		return sign + num + units
	default:
		return sign + num + " " + units
	}
}

// tickFormat returns the d3 format string matching FormatValue's numbers.
func tickFormat(decimals int) string {
	return fmt.Sprintf(",.%df", decimals)
}

// WrapTitle word-wraps a title at width characters using Plotly line breaks.
func WrapTitle(title string, width int) string {
	if width <= 0 {
		width = DefaultTitleWidth
	}
	wrapped := wordwrap.WrapString(strings.TrimSpace(title), uint(width))
	return strings.ReplaceAll(wrapped, "\n", "<br>")
}
