package boundary

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

type edge struct {
	from, to vkey
}

// Dissolve unions member polygons into one MultiPolygon by cancelling every
// edge shared (in opposite directions) between members and re-chaining the
// remaining boundary into rings. Unclosed rings, repeated vertices and either
// winding are accepted. Members must share exact vertices along common
// borders, as tiled statistical boundaries do.
//
// Returns ErrInvalidGeometry when no closed ring can be formed, or when the
// members overlap or self-intersect so that the chained rings would cross or
// nest instead of forming the true union.
func Dissolve(members []orb.MultiPolygon) (orb.MultiPolygon, error) {
	points := make(map[vkey]orb.Point)
	count := make(map[edge]int)
	var order []edge

	for _, mp := range members {
		for _, poly := range mp {
			for ri, ring := range poly {
				pts := openRing(ring)
				if len(pts) < 3 {
					continue
				}
				// Shells wind counterclockwise, holes clockwise, so a shared
				// border always appears once in each direction.
				pts = orient(pts, ri == 0)
				n := len(pts)
				for i := 0; i < n; i++ {
					a, b := keyOf(pts[i]), keyOf(pts[(i+1)%n])
					if a == b {
						continue
					}
					points[a] = pts[i]
					points[b] = pts[(i+1)%n]

					if rev := (edge{b, a}); count[rev] > 0 {
						count[rev]--
						continue
					}
					e := edge{a, b}
					if _, seen := count[e]; !seen {
						order = append(order, e)
					}
					count[e]++
				}
			}
		}
	}

	outgoing := make(map[vkey][]edge)
	var live []edge
	for _, e := range order {
		if count[e] > 0 {
			outgoing[e.from] = append(outgoing[e.from], e)
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return nil, eris.Wrap(ErrInvalidGeometry, "boundary: union left no boundary edges")
	}
	if err := checkEdges(live, count, points); err != nil {
		return nil, err
	}

	var rings [][]orb.Point
	for _, start := range order {
		for count[start] > 0 {
			ring, ok := chainRing(start, count, outgoing, points)
			if ok {
				rings = append(rings, ring)
			}
		}
	}

	mp := assembleRings(rings)
	if len(mp) == 0 {
		return nil, eris.Wrap(ErrInvalidGeometry, "boundary: union produced no closed rings")
	}
	if err := checkNesting(mp); err != nil {
		return nil, err
	}
	return mp, nil
}

// chainRing walks unused edges from start until it returns to the start
// vertex. At vertices with several unused outgoing edges it takes the
// leftmost turn, which splits rings that only touch at a point. A walk that
// dead-ends consumes its edges and reports false.
func chainRing(start edge, count map[edge]int, outgoing map[vkey][]edge, points map[vkey]orb.Point) ([]orb.Point, bool) {
	count[start]--
	ring := []orb.Point{points[start.from]}
	prev, cur := start.from, start.to

	for {
		if cur == start.from {
			return ring, len(ring) >= 3
		}
		ring = append(ring, points[cur])

		next, ok := leftmost(prev, cur, count, outgoing[cur], points)
		if !ok {
			return nil, false
		}
		count[next]--
		prev, cur = cur, next.to
	}
}

func leftmost(prev, cur vkey, count map[edge]int, candidates []edge, points map[vkey]orb.Point) (edge, bool) {
	var best edge
	bestTurn := math.Inf(-1)
	found := false

	p, c := points[prev], points[cur]
	heading := math.Atan2(c[1]-p[1], c[0]-p[0])
	for _, e := range candidates {
		if count[e] <= 0 {
			continue
		}
		var turn float64
		if e.to == prev {
			turn = -math.Pi
		} else {
			n := points[e.to]
			turn = normalizeAngle(math.Atan2(n[1]-c[1], n[0]-c[0]) - heading)
		}
		if !found || turn > bestTurn {
			best, bestTurn, found = e, turn, true
		}
	}
	return best, found
}

// normalizeAngle maps a into (-π, π].
func normalizeAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
