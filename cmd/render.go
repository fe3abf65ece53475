package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/classify"
	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/pipeline"
)

var (
	renderLevel       string
	renderMode        string
	renderColours     int
	renderPalette     string
	renderHex         []string
	renderThresholds  []float64
	renderUnits       string
	renderDecimals    int
	renderShowMissing bool
	renderMapHeight   float64
	renderOut         string
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render one choropleth figure per data column",
	Long:  "Reads a CSV or XLSX table keyed by region code and writes one Plotly figure document per data column to the output directory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := defaultSettings(cfg.Render)
		if err != nil {
			return err
		}
		if err := applyRenderFlags(cmd.Flags(), &settings); err != nil {
			return err
		}

		tbl, err := readTable(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(cmd.Context(), "render")
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Render(pipeline.RenderRequest{Table: tbl, Settings: settings})
		if err != nil {
			return err
		}

		files, err := writeFigures(renderOut, res)
		if err != nil {
			return err
		}
		printRenderSummary(os.Stdout, res, files)
		return nil
	},
}

// applyRenderFlags overrides configured defaults with flags the user set.
func applyRenderFlags(flags *pflag.FlagSet, s *pipeline.Settings) error {
	if flags.Changed("level") {
		level, err := geography.ParseLevel(renderLevel)
		if err != nil {
			return err
		}
		s.Level = level
	}
	if flags.Changed("mode") {
		mode, err := classify.ParseMode(renderMode)
		if err != nil {
			return err
		}
		s.Mode = mode
	}
	if flags.Changed("colours") {
		s.NumColours = renderColours
	}
	if flags.Changed("palette") {
		s.Palette = renderPalette
	}
	if flags.Changed("colour") {
		s.Colours = renderHex
	}
	if flags.Changed("thresholds") {
		s.Thresholds = renderThresholds
	}
	if flags.Changed("units") {
		s.Options.Units = renderUnits
	}
	if flags.Changed("decimals") {
		s.Options.DecimalPlaces = renderDecimals
	}
	if flags.Changed("show-missing") {
		s.Options.ShowMissingValues = renderShowMissing
	}
	if flags.Changed("map-height") {
		s.Options.MapHeight = renderMapHeight
	}
	return nil
}

// writeFigures writes each map's figure as JSON and returns the file paths
// in map order.
func writeFigures(dir string, res *pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create %s", dir)
	}
	files := make([]string, len(res.Maps))
	for i, m := range res.Maps {
		data, err := json.MarshalIndent(m.Figure, "", "  ")
		if err != nil {
			return nil, eris.Wrapf(err, "encode figure %q", m.Column)
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d-%s.json", i+1, slug(m.Column)))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, eris.Wrapf(err, "write %s", path)
		}
		files[i] = path
		zap.L().Debug("figure written", zap.String("column", m.Column), zap.String("path", path))
	}
	return files, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "column"
	}
	return out
}

func printRenderSummary(out io.Writer, res *pipeline.Result, files []string) {
	_, _ = fmt.Fprintf(out, "Level: %s\n\n", res.Level)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tREGIONS\tMISSING\tUNMATCHED\tFILE")
	_, _ = fmt.Fprintln(w, "------\t-------\t-------\t---------\t----")
	for i, m := range res.Maps {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
			m.Column, len(m.Regions), len(m.Missing), len(m.Unmatched), files[i])
	}
	_ = w.Flush()
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderLevel, "level", "", "geography level to render when the table mixes levels (ITL1, ITL2, ITL3, LA, MCA)")
	f.StringVar(&renderMode, "mode", "", "colouring mode: discrete or continuous (default from config)")
	f.IntVar(&renderColours, "colours", 0, "number of colours, 2 to 6 (default from config)")
	f.StringVar(&renderPalette, "palette", "", "named palette, \"_r\" suffix reverses (default from config)")
	f.StringSliceVar(&renderHex, "colour", nil, "explicit hex colours, overriding --palette and --colours")
	f.Float64SliceVar(&renderThresholds, "thresholds", nil, "explicit discrete bounds, one more than the number of colours")
	f.StringVar(&renderUnits, "units", "", "value units: %, a currency symbol, or none")
	f.IntVar(&renderDecimals, "decimals", 1, "decimal places, 0 to 5")
	f.BoolVar(&renderShowMissing, "show-missing", false, "omit the grey layer for regions without a value")
	f.Float64Var(&renderMapHeight, "map-height", 1, "figure height scale")
	f.StringVar(&renderOut, "out", "maps", "output directory for figure JSON")
	rootCmd.AddCommand(renderCmd)
}
