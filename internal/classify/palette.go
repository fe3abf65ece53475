package classify

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed palettes.yaml
var palettesYAML []byte

// reversedSuffix selects a palette's colours high to low.
const reversedSuffix = "_r"

type paletteFile struct {
	Default  string              `yaml:"default"`
	Palettes map[string][]string `yaml:"palettes"`
}

var (
	paletteOnce sync.Once
	palettes    paletteFile
	paletteErr  error
)

func loadPalettes() (paletteFile, error) {
	paletteOnce.Do(func() {
		if err := yaml.Unmarshal(palettesYAML, &palettes); err != nil {
			paletteErr = eris.Wrap(err, "classify: parse palettes")
			return
		}
		if len(palettes.Palettes) == 0 {
			paletteErr = eris.New("classify: no palettes defined")
		}
	})
	return palettes, paletteErr
}

// DefaultPalette returns the name of the palette used when none is chosen.
func DefaultPalette() string {
	p, err := loadPalettes()
	if err != nil || p.Default == "" {
		return "viridis" + reversedSuffix
	}
	return p.Default
}

// PaletteNames lists the available palettes, each also usable with an "_r"
// suffix to reverse it.
func PaletteNames() []string {
	p, err := loadPalettes()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(p.Palettes))
	for name := range p.Palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Palette samples n colours evenly from the named palette. An empty name
// selects the default palette.
func Palette(name string, n int) ([]string, error) {
	if err := CheckCount(n); err != nil {
		return nil, err
	}
	p, err := loadPalettes()
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultPalette()
	}
	reverse := strings.HasSuffix(key, reversedSuffix)
	controls, ok := p.Palettes[strings.TrimSuffix(key, reversedSuffix)]
	if !ok {
		return nil, eris.Errorf("classify: unknown palette %q", name)
	}

	out, err := Ramp(controls, n)
	if err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// ParseColour validates a hex colour ("#rgb" or "#rrggbb") and returns it in
// lower-case six-digit form.
func ParseColour(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", eris.Wrapf(err, "classify: invalid colour %q", s)
	}
	return c.Hex(), nil
}

// Ramp interpolates steps colours evenly along the given colours, keeping the
// first and last.
func Ramp(colours []string, steps int) ([]string, error) {
	if len(colours) == 0 {
		return nil, eris.New("classify: ramp needs at least one colour")
	}
	controls := make([]colorful.Color, len(colours))
	for i, s := range colours {
		hex, err := ParseColour(s)
		if err != nil {
			return nil, err
		}
		controls[i], _ = colorful.Hex(hex)
	}
	if steps <= 1 || len(controls) == 1 {
		return []string{controls[0].Hex()}, nil
	}

	out := make([]string, steps)
	segments := float64(len(controls) - 1)
	for k := 0; k < steps; k++ {
		pos := float64(k) / float64(steps-1) * segments
		i := int(pos)
		if i >= len(controls)-1 {
			out[k] = controls[len(controls)-1].Hex()
			continue
		}
		out[k] = controls[i].BlendRgb(controls[i+1], pos-float64(i)).Clamped().Hex()
	}
	return out, nil
}
