package boundary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/geography"
)

// Feature is one base polygon read from a reference boundary file.
type Feature struct {
	Code     string
	Name     string
	Geometry orb.MultiPolygon
}

// Properties names the attribute fields carrying code and display name. Empty
// fields are detected: the first attribute ending in "CD" is the code and the
// first ending in "NM" is the name (ONS naming, e.g. ITL321CD / ITL321NM).
type Properties struct {
	Code string
	Name string
}

// Source is the finest-level boundary data for one taxonomy.
type Source struct {
	Level    geography.Level
	Features []Feature
}

// NewSource builds a source from in-memory features. Codes are canonicalized
// and features without polygon geometry are dropped.
func NewSource(level geography.Level, features []Feature) *Source {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		f.Code = geography.Canonical(f.Code)
		if f.Code == "" || len(f.Geometry) == 0 {
			continue
		}
		out = append(out, f)
	}
	return &Source{Level: level, Features: out}
}

// Load reads a boundary file, choosing the decoder by extension (.shp or
// GeoJSON otherwise).
func Load(path string, level geography.Level, props Properties) (*Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return LoadShapefile(path, level, props)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}
	return LoadGeoJSON(data, level, props)
}

// LoadGeoJSON decodes a FeatureCollection of polygon features. Coordinates must
// be WGS84 longitude/latitude.
func LoadGeoJSON(data []byte, level geography.Level, props Properties) (*Source, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}

	log := zap.L().With(zap.String("component", "boundary.source"))

	features := make([]Feature, 0, len(fc.Features))
	var skipped int
	for _, f := range fc.Features {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		codeKey, nameKey := resolveProperties(keys, props)

		code := propertyString(f.Properties, codeKey)
		mp := toMultiPolygon(f.Geometry)
		if code == "" || len(mp) == 0 {
			skipped++
			continue
		}
		features = append(features, Feature{
			Code:     code,
			Name:     propertyString(f.Properties, nameKey),
			Geometry: mp,
		})
	}

	if skipped > 0 {
		log.Debug("boundary: skipped features without code or polygon", zap.Int("skipped", skipped))
	}
	return finishSource(level, features)
}

// LoadShapefile reads polygon records from an ESRI shapefile.
func LoadShapefile(path string, level geography.Level, props Properties) (*Source, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		names[i] = name
		fieldIdx[name] = i
	}
	codeKey, nameKey := resolveProperties(names, props)
	codeIdx, ok := fieldIdx[codeKey]
	if !ok {
		return nil, eris.Errorf("boundary: shapefile %s has no code field", path)
	}
	nameIdx, hasName := fieldIdx[nameKey]

	var features []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		mp := shapefilePolygon(poly)
		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		if code == "" || len(mp) == 0 {
			skipped++
			continue
		}
		var name string
		if hasName {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}
		features = append(features, Feature{Code: code, Name: name, Geometry: mp})
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return finishSource(level, features)
}

// shapefilePolygon converts a shapefile polygon record, whose shells wind
// clockwise and holes counterclockwise, into a MultiPolygon.
func shapefilePolygon(p *shp.Polygon) orb.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var rings [][]orb.Point
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			continue
		}

		pts := make([]orb.Point, 0, end-start)
		for j := start; j < end; j++ {
			pts = append(pts, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		pts = openRing(pts)
		if len(pts) < 3 {
			continue
		}
		rings = append(rings, reversed(pts))
	}
	return assembleRings(rings)
}

func finishSource(level geography.Level, features []Feature) (*Source, error) {
	src := NewSource(level, features)
	if len(src.Features) == 0 {
		return nil, eris.Wrapf(ErrNoBoundaries, "boundary: no %s features", level)
	}
	if err := checkLonLat(src); err != nil {
		return nil, err
	}
	return src, nil
}

// checkLonLat rejects projected coordinates; the renderer draws on a
// geographic projection and requires degrees.
func checkLonLat(src *Source) error {
	for _, f := range src.Features {
		b := f.Geometry.Bound()
		if b.Min[0] < -180 || b.Max[0] > 180 || b.Min[1] < -90 || b.Max[1] > 90 {
			return eris.Errorf("boundary: feature %s is not in longitude/latitude (bound %v)", f.Code, b)
		}
	}
	return nil
}

func resolveProperties(keys []string, props Properties) (code, name string) {
	code, name = props.Code, props.Name
	for _, k := range keys {
		upper := strings.ToUpper(k)
		if code == "" && strings.HasSuffix(upper, "CD") {
			code = k
		}
		if name == "" && strings.HasSuffix(upper, "NM") {
			name = k
		}
	}
	return code, name
}

func propertyString(p geojson.Properties, key string) string {
	if key == "" {
		return ""
	}
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
