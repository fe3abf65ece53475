// Package boundary loads base region polygons and dissolves them into the
// coarser geography levels a choropleth is drawn at.
package boundary

import (
	"errors"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/sells-group/regionmap/internal/geography"
)

// Role tags how the renderer should treat a region.
type Role string

// Roles.
const (
	// RoleRegion is a data-bearing region.
	RoleRegion Role = "region"
	// RoleBackground is non-target territory drawn only for context.
	RoleBackground Role = "non_mca"
)

// Reserved codes for synthetic regions.
const (
	NonMCACode = "non_mca"
	NonMCAName = "Not in a Mayoral Combined Authority"
	// EnglandName is the display name of the national rollup region.
	EnglandName = "England"
)

var (
	// ErrNoBoundaries is returned when a level yields no geometry at all.
	ErrNoBoundaries = errors.New("boundary: no boundaries")
	// ErrInvalidGeometry is returned when a union cannot produce a polygon.
	ErrInvalidGeometry = errors.New("boundary: invalid geometry")
)

// Region is one coded polygon in a Set.
type Region struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Role     Role             `json:"role"`
	Geometry orb.MultiPolygon `json:"-"`
}

// Set is an ordered, code-unique collection of regions at one level. Sets are
// shared through the cache and must be treated as read-only.
type Set struct {
	Level   geography.Level `json:"level"`
	Regions []Region        `json:"regions"`
	// Omitted lists codes whose union failed.
	Omitted []string `json:"omitted,omitempty"`

	index map[string]int
}

// NewSet builds a set, ordering data-bearing regions by code ahead of
// background regions. Later duplicates of a code are dropped.
func NewSet(level geography.Level, regions []Region) *Set {
	sorted := make([]Region, 0, len(regions))
	seen := make(map[string]bool, len(regions))
	for _, r := range regions {
		if seen[r.Code] {
			continue
		}
		seen[r.Code] = true
		if r.Role == "" {
			r.Role = RoleRegion
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Role != sorted[j].Role {
			return sorted[i].Role == RoleRegion
		}
		return sorted[i].Code < sorted[j].Code
	})

	s := &Set{Level: level, Regions: sorted}
	s.reindex()
	return s
}

func (s *Set) reindex() {
	s.index = make(map[string]int, len(s.Regions))
	for i, r := range s.Regions {
		s.index[r.Code] = i
	}
}

// Len returns the number of regions including background.
func (s *Set) Len() int {
	return len(s.Regions)
}

// Lookup finds a region by code.
func (s *Set) Lookup(code string) (Region, bool) {
	i, ok := s.index[geography.Canonical(code)]
	if !ok {
		i, ok = s.index[code]
	}
	if !ok {
		return Region{}, false
	}
	return s.Regions[i], true
}

// Targets returns the data-bearing regions.
func (s *Set) Targets() []Region {
	return s.byRole(RoleRegion)
}

// Background returns the context-only regions.
func (s *Set) Background() []Region {
	return s.byRole(RoleBackground)
}

func (s *Set) byRole(role Role) []Region {
	var out []Region
	for _, r := range s.Regions {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

// Bound returns the bounding box of every region.
func (s *Set) Bound() orb.Bound {
	var b orb.Bound
	for i, r := range s.Regions {
		if i == 0 {
			b = r.Geometry.Bound()
			continue
		}
		b = b.Union(r.Geometry.Bound())
	}
	return b
}

// FeatureCollection encodes regions as GeoJSON features carrying code, name,
// and role properties.
func FeatureCollection(regions []Region) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.Code
		f.Properties["code"] = r.Code
		f.Properties["name"] = r.Name
		f.Properties["role"] = string(r.Role)
		fc.Append(f)
	}
	return fc
}
