package boundary

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// DefaultTolerance is the simplification tolerance in coordinate units.
const DefaultTolerance = 1e-4

// arcSimplifier simplifies every shared border exactly once so the regions
// that share it keep identical vertices after simplification. Rings are split
// into arcs at junction vertices (any vertex not joined to exactly two
// neighbours); each arc is simplified with Douglas-Peucker, endpoints fixed.
type arcSimplifier struct {
	tolerance float64
	degree    map[vkey]int
	arcs      map[[3]vkey][]orb.Point
}

// SimplifySet returns a copy of set with every region simplified at tolerance.
// A ring that would collapse below a triangle keeps its original vertices.
func SimplifySet(set *Set, tolerance float64) *Set {
	if tolerance <= 0 {
		return set
	}

	s := &arcSimplifier{
		tolerance: tolerance,
		degree:    vertexDegrees(set.Regions),
		arcs:      make(map[[3]vkey][]orb.Point),
	}

	regions := make([]Region, len(set.Regions))
	for i, r := range set.Regions {
		mp := make(orb.MultiPolygon, 0, len(r.Geometry))
		for _, poly := range r.Geometry {
			out := make(orb.Polygon, 0, len(poly))
			for _, ring := range poly {
				out = append(out, s.ring(ring))
			}
			mp = append(mp, out)
		}
		r.Geometry = mp
		regions[i] = r
	}

	out := &Set{Level: set.Level, Regions: regions, Omitted: set.Omitted}
	out.reindex()
	return out
}

// vertexDegrees counts distinct neighbours of every vertex across all rings.
func vertexDegrees(regions []Region) map[vkey]int {
	neighbours := make(map[vkey]map[vkey]struct{})
	link := func(a, b vkey) {
		if neighbours[a] == nil {
			neighbours[a] = make(map[vkey]struct{}, 2)
		}
		neighbours[a][b] = struct{}{}
	}
	for _, r := range regions {
		for _, poly := range r.Geometry {
			for _, ring := range poly {
				pts := openRing(ring)
				n := len(pts)
				for i := 0; i < n; i++ {
					a, b := keyOf(pts[i]), keyOf(pts[(i+1)%n])
					if a == b {
						continue
					}
					link(a, b)
					link(b, a)
				}
			}
		}
	}

	degree := make(map[vkey]int, len(neighbours))
	for k, ns := range neighbours {
		degree[k] = len(ns)
	}
	return degree
}

func (s *arcSimplifier) ring(ring orb.Ring) orb.Ring {
	pts := openRing(ring)
	if len(pts) < 4 {
		return ring
	}

	start := -1
	for i, p := range pts {
		if s.degree[keyOf(p)] != 2 {
			start = i
			break
		}
	}

	var simplified []orb.Point
	if start < 0 {
		simplified = s.island(pts)
	} else {
		simplified = s.split(pts, start)
	}

	if len(simplified) < 3 || signedArea(simplified) == 0 {
		return ring
	}
	return closeRing(simplified)
}

// island simplifies a ring with no junctions. The ring is rotated to its
// smallest vertex and wound counterclockwise first, so two copies of the same
// ring (an enclave and the hole around it) simplify identically.
func (s *arcSimplifier) island(pts []orb.Point) []orb.Point {
	ccw := signedArea(pts) > 0
	canon := orient(pts, true)

	lo := 0
	for i, p := range canon {
		if keyOf(p).less(keyOf(canon[lo])) {
			lo = i
		}
	}
	rotated := make([]orb.Point, 0, len(canon)+1)
	rotated = append(rotated, canon[lo:]...)
	rotated = append(rotated, canon[:lo]...)

	closed := closeRing(rotated)
	out := []orb.Point(simplify.DouglasPeucker(s.tolerance).Ring(closed.Clone()))
	out = openRing(out)
	if !ccw {
		out = reversed(out)
	}
	return out
}

// split walks the ring from a junction, simplifying each arc between
// consecutive junctions.
func (s *arcSimplifier) split(pts []orb.Point, start int) []orb.Point {
	n := len(pts)
	out := make([]orb.Point, 0, n)
	arc := []orb.Point{pts[start]}

	for step := 1; step <= n; step++ {
		p := pts[(start+step)%n]
		arc = append(arc, p)
		if step == n || s.degree[keyOf(p)] != 2 {
			simplified := s.arc(arc)
			out = append(out, simplified[:len(simplified)-1]...)
			arc = []orb.Point{p}
		}
	}
	return out
}

// arc simplifies an open polyline in a canonical direction and memoizes the
// result, returning it in the caller's direction.
func (s *arcSimplifier) arc(arc []orb.Point) []orb.Point {
	if len(arc) <= 2 {
		return arc
	}

	forward := !lessSeq(reversed(arc), arc)
	canon := arc
	if !forward {
		canon = reversed(arc)
	}

	key := [3]vkey{keyOf(canon[0]), keyOf(canon[1]), keyOf(canon[len(canon)-1])}
	simplified, ok := s.arcs[key]
	if !ok {
		ls := orb.LineString(canon).Clone()
		simplified = []orb.Point(simplify.DouglasPeucker(s.tolerance).LineString(ls))
		s.arcs[key] = simplified
	}

	if forward {
		return simplified
	}
	return reversed(simplified)
}

// lessSeq compares two vertex sequences lexicographically by quantized key.
func lessSeq(a, b []orb.Point) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		ka, kb := keyOf(a[i]), keyOf(b[i])
		if ka != kb {
			return ka.less(kb)
		}
	}
	return len(a) < len(b)
}
