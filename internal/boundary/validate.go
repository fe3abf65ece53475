package boundary

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// segment is one directed boundary edge left after cancellation.
type segment struct {
	a, b       orb.Point
	ka, kb     vkey
	minX, minY float64
	maxX, maxY float64
}

func newSegment(e edge, points map[vkey]orb.Point) segment {
	a, b := points[e.from], points[e.to]
	return segment{
		a: a, b: b, ka: e.from, kb: e.to,
		minX: math.Min(a[0], b[0]), maxX: math.Max(a[0], b[0]),
		minY: math.Min(a[1], b[1]), maxY: math.Max(a[1], b[1]),
	}
}

// checkEdges rejects a remaining edge set whose edges cross, overlap or
// touch anywhere other than at a shared vertex. Such edges come from
// overlapping or self-intersecting members, and chaining them would not
// give the true union.
func checkEdges(edges []edge, count map[edge]int, points map[vkey]orb.Point) error {
	segs := make([]segment, 0, len(edges))
	bound := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, e := range edges {
		if count[e] > 1 {
			return eris.Wrap(ErrInvalidGeometry, "boundary: members overlap along a shared edge")
		}
		s := newSegment(e, points)
		segs = append(segs, s)
		bound = bound.Extend(s.a).Extend(s.b)
	}
	if len(segs) < 2 {
		return nil
	}

	// Bucket segments on a uniform grid so only nearby pairs are compared.
	side := int(math.Ceil(math.Sqrt(float64(len(segs)))))
	w := (bound.Max[0] - bound.Min[0]) / float64(side)
	h := (bound.Max[1] - bound.Min[1]) / float64(side)
	cell := func(v, lo, size float64) int {
		if size <= 0 {
			return 0
		}
		i := int((v - lo) / size)
		if i >= side {
			i = side - 1
		}
		return i
	}

	grid := make(map[[2]int][]int)
	for i, s := range segs {
		x0, x1 := cell(s.minX, bound.Min[0], w), cell(s.maxX, bound.Min[0], w)
		y0, y1 := cell(s.minY, bound.Min[1], h), cell(s.maxY, bound.Min[1], h)
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				k := [2]int{x, y}
				for _, j := range grid[k] {
					if conflict(segs[i], segs[j]) {
						return eris.Wrapf(ErrInvalidGeometry,
							"boundary: edges cross near (%g, %g)", s.a[0], s.a[1])
					}
				}
				grid[k] = append(grid[k], i)
			}
		}
	}
	return nil
}

// conflict reports whether two segments meet anywhere other than at a vertex
// both share as an endpoint.
func conflict(s, t segment) bool {
	if s.maxX < t.minX || t.maxX < s.minX || s.maxY < t.minY || t.maxY < s.minY {
		return false
	}

	o1 := orientation(s.a, s.b, t.a)
	o2 := orientation(s.a, s.b, t.b)
	o3 := orientation(t.a, t.b, s.a)
	o4 := orientation(t.a, t.b, s.b)
	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}

	// An endpoint resting on the other segment is only allowed when it is
	// also one of that segment's endpoints.
	return (o1 == 0 && t.ka != s.ka && t.ka != s.kb && onSegment(s, t.a)) ||
		(o2 == 0 && t.kb != s.ka && t.kb != s.kb && onSegment(s, t.b)) ||
		(o3 == 0 && s.ka != t.ka && s.ka != t.kb && onSegment(t, s.a)) ||
		(o4 == 0 && s.kb != t.ka && s.kb != t.kb && onSegment(t, s.b))
}

// orientation is the sign of the turn a→b→c: 1 left, -1 right, 0 collinear
// within the vertex snap.
func orientation(a, b, c orb.Point) int {
	cross := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	length := math.Hypot(b[0]-a[0], b[1]-a[1])
	if math.Abs(cross) <= snap*length {
		return 0
	}
	if cross > 0 {
		return 1
	}
	return -1
}

func onSegment(s segment, p orb.Point) bool {
	return p[0] >= s.minX-snap && p[0] <= s.maxX+snap &&
		p[1] >= s.minY-snap && p[1] <= s.maxY+snap
}

// checkNesting rejects output polygons lying inside another polygon's filled
// area, which happens when one member covers another without any crossing
// edges.
func checkNesting(mp orb.MultiPolygon) error {
	bounds := make([]orb.Bound, len(mp))
	for i, poly := range mp {
		bounds[i] = poly[0].Bound()
	}
	for i, inner := range mp {
		for j, outer := range mp {
			if i == j || !bounds[j].Intersects(bounds[i]) {
				continue
			}
			if p, ok := offBoundary(inner[0], outer); ok && planar.PolygonContains(outer, p) {
				return eris.Wrapf(ErrInvalidGeometry,
					"boundary: polygon near (%g, %g) lies inside another", p[0], p[1])
			}
		}
	}
	return nil
}

// offBoundary returns a vertex of ring that is not on any ring of poly.
func offBoundary(ring orb.Ring, poly orb.Polygon) (orb.Point, bool) {
	onPoly := make(map[vkey]bool)
	for _, r := range poly {
		for _, p := range r {
			onPoly[keyOf(p)] = true
		}
	}
	for _, p := range ring {
		if onPoly[keyOf(p)] {
			continue
		}
		if !onAnyEdge(poly, p) {
			return p, true
		}
	}
	return orb.Point{}, false
}

func onAnyEdge(poly orb.Polygon, p orb.Point) bool {
	for _, r := range poly {
		for i := 0; i+1 < len(r); i++ {
			a, b := r[i], r[i+1]
			s := segment{
				minX: math.Min(a[0], b[0]), maxX: math.Max(a[0], b[0]),
				minY: math.Min(a[1], b[1]), maxY: math.Max(a[1], b[1]),
			}
			if orientation(a, b, p) == 0 && onSegment(s, p) {
				return true
			}
		}
	}
	return false
}
