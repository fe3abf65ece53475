package boundary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionmap/internal/geography"
)

const itl3GeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"FID": 1, "ITL321CD": "tlc11", "ITL321NM": "Hartlepool and Stockton-on-Tees"},
      "geometry": {"type": "Polygon", "coordinates": [[[-1.3,54.5],[-1.2,54.5],[-1.2,54.6],[-1.3,54.6],[-1.3,54.5]]]}
    },
    {
      "type": "Feature",
      "properties": {"FID": 2, "ITL321CD": "TLC12", "ITL321NM": "South Teesside"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[-1.2,54.5],[-1.1,54.5],[-1.1,54.6],[-1.2,54.6],[-1.2,54.5]]]]}
    },
    {
      "type": "Feature",
      "properties": {"FID": 3, "ITL321CD": "TLC13"},
      "geometry": {"type": "Point", "coordinates": [-1.0, 54.5]}
    }
  ]
}`

func TestLoadGeoJSON_DetectsProperties(t *testing.T) {
	src, err := LoadGeoJSON([]byte(itl3GeoJSON), geography.LevelITL3, Properties{})
	require.NoError(t, err)

	assert.Equal(t, geography.LevelITL3, src.Level)
	require.Len(t, src.Features, 2)
	assert.Equal(t, "TLC11", src.Features[0].Code)
	assert.Equal(t, "Hartlepool and Stockton-on-Tees", src.Features[0].Name)
	assert.Equal(t, "TLC12", src.Features[1].Code)
	assert.Len(t, src.Features[1].Geometry, 1)
}

func TestLoadGeoJSON_ExplicitProperties(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"code":"E06000001","label":"Hartlepool"},
	   "geometry":{"type":"Polygon","coordinates":[[[-1.3,54.6],[-1.1,54.6],[-1.1,54.7],[-1.3,54.6]]]}}
	]}`

	src, err := LoadGeoJSON([]byte(data), geography.LevelLA, Properties{Code: "code", Name: "label"})
	require.NoError(t, err)
	require.Len(t, src.Features, 1)
	assert.Equal(t, "E06000001", src.Features[0].Code)
	assert.Equal(t, "Hartlepool", src.Features[0].Name)
}

func TestLoadGeoJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		noBound bool
		msg     string
	}{
		{
			name: "not json",
			data: "nope",
			msg:  "decode geojson",
		},
		{
			name:    "no polygon features",
			data:    `{"type":"FeatureCollection","features":[]}`,
			noBound: true,
		},
		{
			name: "projected coordinates",
			data: `{"type":"FeatureCollection","features":[
			  {"type":"Feature","properties":{"LAD24CD":"E06000001"},
			   "geometry":{"type":"Polygon","coordinates":[[[447000,531000],[448000,531000],[448000,532000],[447000,531000]]]}}
			]}`,
			msg: "not in longitude/latitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGeoJSON([]byte(tt.data), geography.LevelLA, Properties{})
			require.Error(t, err)
			if tt.noBound {
				assert.True(t, eris.Is(err, ErrNoBoundaries))
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestLoad_GeoJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itl3.geojson")
	require.NoError(t, os.WriteFile(path, []byte(itl3GeoJSON), 0o600))

	src, err := Load(path, geography.LevelITL3, Properties{})
	require.NoError(t, err)
	assert.Len(t, src.Features, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.geojson"), geography.LevelITL3, Properties{})
	assert.Error(t, err)
}

func TestShapefilePolygon_ClockwiseShells(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			// Shell, clockwise.
			{X: 0, Y: 0}, {X: 0, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 0}, {X: 0, Y: 0},
			// Hole, counterclockwise.
			{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}, {X: 1, Y: 1},
		},
	}

	mp := shapefilePolygon(poly)
	require.Len(t, mp, 1)
	require.Len(t, mp[0], 2)
	assert.Greater(t, signedArea(openRing(mp[0][0])), 0.0)
	assert.Less(t, signedArea(openRing(mp[0][1])), 0.0)
	assert.InDelta(t, 8.0, area(mp), 1e-9)

	assert.Nil(t, shapefilePolygon(&shp.Polygon{}))
}

func TestLoadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lad.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("LAD24CD", 9),
		shp.StringField("LAD24NM", 40),
	}))
	rings := [][]shp.Point{
		{{X: -1.3, Y: 54.6}, {X: -1.3, Y: 54.7}, {X: -1.2, Y: 54.7}, {X: -1.2, Y: 54.6}, {X: -1.3, Y: 54.6}},
		{{X: -1.2, Y: 54.6}, {X: -1.2, Y: 54.7}, {X: -1.1, Y: 54.7}, {X: -1.1, Y: 54.6}, {X: -1.2, Y: 54.6}},
	}
	for i, pts := range rings {
		w.Write(&shp.Polygon{
			Box:       shp.BBoxFromPoints(pts),
			NumParts:  1,
			NumPoints: int32(len(pts)),
			Parts:     []int32{0},
			Points:    pts,
		})
		require.NoError(t, w.WriteAttribute(i, 0, []string{"E06000001", "E06000002"}[i]))
		require.NoError(t, w.WriteAttribute(i, 1, []string{"Hartlepool", "Middlesbrough"}[i]))
	}
	w.Close()
	// go-shp's writer names the attribute table without the dot (lad + "dbf").
	require.NoError(t, os.Rename(filepath.Join(dir, "laddbf"), filepath.Join(dir, "lad.dbf")))

	src, err := LoadShapefile(path, geography.LevelLA, Properties{})
	require.NoError(t, err)
	require.Len(t, src.Features, 2)
	assert.Equal(t, "E06000001", src.Features[0].Code)
	assert.Equal(t, "Hartlepool", src.Features[0].Name)
	assert.Equal(t, "Middlesbrough", src.Features[1].Name)
	assert.Greater(t, signedArea(openRing(src.Features[0].Geometry[0][0])), 0.0)
}
