package boundary

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// snap is the grid vertices are quantized to when matching shared edges.
const snap = 1e-9

// vkey is a quantized vertex used as a map key.
type vkey [2]int64

func keyOf(p orb.Point) vkey {
	return vkey{int64(math.Round(p[0] / snap)), int64(math.Round(p[1] / snap))}
}

func (k vkey) less(o vkey) bool {
	if k[0] != o[0] {
		return k[0] < o[0]
	}
	return k[1] < o[1]
}

// openRing returns the ring's distinct vertices without the closing point,
// dropping consecutive duplicates.
func openRing(r orb.Ring) []orb.Point {
	out := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && keyOf(out[len(out)-1]) == keyOf(p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && keyOf(out[0]) == keyOf(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// closeRing appends the first vertex to an open vertex list.
func closeRing(pts []orb.Point) orb.Ring {
	r := make(orb.Ring, 0, len(pts)+1)
	r = append(r, pts...)
	if len(pts) > 0 {
		r = append(r, pts[0])
	}
	return r
}

// signedArea is the shoelace area of an open or closed vertex list; positive
// for counterclockwise winding.
func signedArea(pts []orb.Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return a / 2
}

func reversed(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// orient returns pts wound counterclockwise when ccw is true, clockwise
// otherwise.
func orient(pts []orb.Point, ccw bool) []orb.Point {
	if (signedArea(pts) > 0) != ccw {
		return reversed(pts)
	}
	return pts
}

// toMultiPolygon flattens any polygonal geometry into a MultiPolygon. Non-areal
// members are ignored.
func toMultiPolygon(g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, m := range v {
			mp = append(mp, toMultiPolygon(m)...)
		}
		return mp
	default:
		return nil
	}
}

type shell struct {
	ring  orb.Ring
	area  float64
	bound orb.Bound
	holes []orb.Ring
}

func newShell(pts []orb.Point) *shell {
	r := closeRing(pts)
	return &shell{ring: r, area: math.Abs(signedArea(pts)), bound: r.Bound()}
}

// contains reports whether the hole lies within the shell, judged by its first
// vertex that falls inside or on the shell ring.
func (s *shell) contains(hole []orb.Point) bool {
	for _, p := range hole {
		if !s.bound.Contains(p) {
			return false
		}
		if planar.RingContains(s.ring, p) {
			return true
		}
	}
	return false
}

// assembleRings groups counterclockwise shells and clockwise holes into
// polygons. Each hole goes to the smallest shell containing it; orphan holes
// are kept as shells so no area is lost.
func assembleRings(rings [][]orb.Point) orb.MultiPolygon {
	var shells []*shell
	var holes [][]orb.Point
	for _, pts := range rings {
		a := signedArea(pts)
		switch {
		case a > 0:
			shells = append(shells, newShell(pts))
		case a < 0:
			holes = append(holes, pts)
		}
	}

	for _, h := range holes {
		var best *shell
		for _, s := range shells {
			if !s.contains(h) {
				continue
			}
			if best == nil || s.area < best.area {
				best = s
			}
		}
		if best == nil {
			shells = append(shells, newShell(reversed(h)))
			continue
		}
		best.holes = append(best.holes, closeRing(h))
	}

	sort.SliceStable(shells, func(i, j int) bool { return shells[i].area > shells[j].area })

	mp := make(orb.MultiPolygon, 0, len(shells))
	for _, s := range shells {
		poly := orb.Polygon{s.ring}
		poly = append(poly, s.holes...)
		mp = append(mp, poly)
	}
	return mp
}
