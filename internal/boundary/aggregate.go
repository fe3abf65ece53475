package boundary

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/metrics"
)

// Aggregator dissolves base boundaries up to any renderable level.
type Aggregator struct {
	itl       *Source
	la        *Source
	itlMap    *geography.MappingTable
	mcaMap    *geography.MappingTable
	tolerance float64
	log       *zap.Logger
}

// AggregatorConfig holds the reference data an Aggregator works from. Either
// taxonomy may be left nil when its levels are never requested.
type AggregatorConfig struct {
	ITL        *Source
	LA         *Source
	ITLMapping *geography.MappingTable
	MCAMapping *geography.MappingTable
	// Tolerance is the simplification tolerance; zero disables simplification.
	Tolerance float64
}

// NewAggregator creates an Aggregator over the given reference data.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{
		itl:       cfg.ITL,
		la:        cfg.LA,
		itlMap:    cfg.ITLMapping,
		mcaMap:    cfg.MCAMapping,
		tolerance: cfg.Tolerance,
		log:       zap.L().With(zap.String("component", "boundary.aggregate")),
	}
}

// group collects the base features dissolving into one coarser region.
type group struct {
	unit    geography.Unit
	role    Role
	members []orb.MultiPolygon
}

// Build returns the boundary set for level. At a taxonomy's base level the
// base features are returned individually. nationalRollup only affects ITL1:
// every English ITL1 region is merged under the England code.
func (a *Aggregator) Build(level geography.Level, nationalRollup bool) (*Set, error) {
	start := time.Now()
	defer func() {
		metrics.BoundaryBuildDurationMs.WithLabelValues(string(level)).
			Observe(float64(time.Since(start).Milliseconds()))
	}()

	src, mapping, err := a.reference(level)
	if err != nil {
		return nil, err
	}

	var set *Set
	switch {
	case level == level.Base():
		set = a.base(src, mapping)
	case level == geography.LevelMCA:
		set = a.dissolve(level, a.mcaGroups(src))
	default:
		set = a.dissolve(level, a.itlGroups(src, level, nationalRollup))
	}

	if set.Len() == 0 {
		return nil, eris.Wrapf(ErrNoBoundaries, "boundary: level %s", level)
	}
	set = SimplifySet(set, a.tolerance)

	a.log.Debug("boundary: built set",
		zap.String("level", string(level)),
		zap.Bool("national_rollup", nationalRollup),
		zap.Int("regions", set.Len()),
		zap.Int("omitted", len(set.Omitted)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return set, nil
}

func (a *Aggregator) reference(level geography.Level) (*Source, *geography.MappingTable, error) {
	switch level.Taxonomy() {
	case geography.TaxonomyITL:
		if a.itl == nil {
			return nil, nil, eris.Wrap(ErrNoBoundaries, "boundary: no ITL reference boundaries loaded")
		}
		if level != level.Base() && a.itlMap == nil {
			return nil, nil, eris.New("boundary: no ITL mapping loaded")
		}
		if err := checkBase(a.itl, a.itlMap, level); err != nil {
			return nil, nil, err
		}
		return a.itl, a.itlMap, nil
	default:
		if a.la == nil {
			return nil, nil, eris.Wrap(ErrNoBoundaries, "boundary: no Local Authority reference boundaries loaded")
		}
		if level == geography.LevelMCA && a.mcaMap == nil {
			return nil, nil, eris.New("boundary: no MCA mapping loaded")
		}
		if err := checkBase(a.la, a.mcaMap, level); err != nil {
			return nil, nil, err
		}
		return a.la, a.mcaMap, nil
	}
}

// checkBase rejects reference data keyed on a level other than the
// taxonomy's base.
func checkBase(src *Source, mapping *geography.MappingTable, level geography.Level) error {
	base := level.Base()
	if src.Level != base {
		return eris.Errorf("boundary: %s boundaries are at %s, want %s", level.Taxonomy(), src.Level, base)
	}
	if mapping != nil && mapping.Base() != base {
		return eris.Errorf("boundary: %s mapping is keyed on %s, want %s", level.Taxonomy(), mapping.Base(), base)
	}
	return nil
}

// base returns the source features unchanged, named from the mapping when the
// feature carries no name.
func (a *Aggregator) base(src *Source, mapping *geography.MappingTable) *Set {
	regions := make([]Region, 0, len(src.Features))
	for _, f := range src.Features {
		name := f.Name
		if mapping != nil {
			if n, ok := mapping.Name(f.Code); ok && n != "" {
				name = n
			}
		}
		if name == "" {
			name = f.Code
		}
		regions = append(regions, Region{Code: f.Code, Name: name, Role: RoleRegion, Geometry: f.Geometry})
	}
	return NewSet(src.Level, regions)
}

func (a *Aggregator) itlGroups(src *Source, level geography.Level, nationalRollup bool) []*group {
	groups := make(map[string]*group)
	var order []string
	var unmapped []string

	for _, f := range src.Features {
		u, ok := a.itlMap.Parent(f.Code, level)
		if !ok || u.Code == "" {
			unmapped = append(unmapped, f.Code)
			continue
		}
		if nationalRollup && level == geography.LevelITL1 && !geography.IsNation(u.Code) {
			u = geography.Unit{Code: geography.EnglandCode, Name: EnglandName}
		}
		g, ok := groups[u.Code]
		if !ok {
			g = &group{unit: u, role: RoleRegion}
			groups[u.Code] = g
			order = append(order, u.Code)
		}
		g.members = append(g.members, f.Geometry)
	}

	if len(unmapped) > 0 {
		a.log.Warn("boundary: features missing from ITL mapping",
			zap.String("level", string(level)),
			zap.Strings("codes", unmapped),
		)
	}
	return orderedGroups(groups, order)
}

// mcaGroups partitions Local Authorities into one group per MCA plus a single
// background group for every authority outside any MCA.
func (a *Aggregator) mcaGroups(src *Source) []*group {
	groups := make(map[string]*group)
	var order []string
	background := &group{
		unit: geography.Unit{Code: NonMCACode, Name: NonMCAName},
		role: RoleBackground,
	}

	for _, f := range src.Features {
		u, ok := a.mcaMap.Parent(f.Code, geography.LevelMCA)
		if !ok || u.Code == "" {
			background.members = append(background.members, f.Geometry)
			continue
		}
		g, ok := groups[u.Code]
		if !ok {
			g = &group{unit: u, role: RoleRegion}
			groups[u.Code] = g
			order = append(order, u.Code)
		}
		g.members = append(g.members, f.Geometry)
	}

	out := orderedGroups(groups, order)
	if len(background.members) > 0 {
		out = append(out, background)
	}
	return out
}

func orderedGroups(groups map[string]*group, order []string) []*group {
	sort.Strings(order)
	out := make([]*group, 0, len(order))
	for _, code := range order {
		out = append(out, groups[code])
	}
	return out
}

// dissolve unions each group. A group whose union fails is omitted and
// recorded in the set's Omitted list.
func (a *Aggregator) dissolve(level geography.Level, groups []*group) *Set {
	regions := make([]Region, 0, len(groups))
	var omitted []string

	for _, g := range groups {
		mp, err := Dissolve(g.members)
		if err != nil {
			a.log.Warn("boundary: union failed, region omitted",
				zap.String("level", string(level)),
				zap.String("code", g.unit.Code),
				zap.Int("members", len(g.members)),
				zap.Error(err),
			)
			metrics.UnionFailuresTotal.WithLabelValues(string(level)).Inc()
			omitted = append(omitted, g.unit.Code)
			continue
		}
		name := g.unit.Name
		if name == "" {
			name = g.unit.Code
		}
		regions = append(regions, Region{Code: g.unit.Code, Name: name, Role: g.role, Geometry: mp})
	}

	set := NewSet(level, regions)
	set.Omitted = omitted
	return set
}
