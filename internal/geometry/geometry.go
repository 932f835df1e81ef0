// Package geometry turns the raw pointer samples of a finished stroke into
// the compact form that gets persisted: smoothed, simplified, classified.
package geometry

import (
	"math"

	"github.com/aolo2/desk/internal/protocol"
)

const (
	// Smoothing weight of the exponential moving average.
	smoothingAlpha = 0.4

	// Maximum perpendicular deviation a dropped point may have from the
	// chord of its segment.
	simplifyEpsilon = 0.5

	// Relative length deviation below which a stroke counts as a straight
	// line and collapses to its endpoints.
	straightLineRatio = 0.08
)

// BBox is an axis-aligned bounding box, already padded by the stroke width.
type BBox struct {
	XMin, YMin int32
	XMax, YMax int32
}

// Stats holds the raw-sequence measurements computed before any smoothing.
type Stats struct {
	BBox   BBox
	Length float64
}

// Result is the persisted form of a stroke.
type Result struct {
	Points []protocol.Point
	Closed bool
	Stats  Stats
}

type fpoint struct {
	x, y float64
}

// ComputeStats measures the raw point sequence: bounding box padded by the
// stroke width on all sides, and total polyline length.
func ComputeStats(points []protocol.Point, width uint32) Stats {
	if len(points) == 0 {
		return Stats{}
	}

	xmin, ymin := points[0].X, points[0].Y
	xmax, ymax := xmin, ymin
	length := 0.0

	for i, p := range points {
		if p.X < xmin {
			xmin = p.X
		}
		if p.Y < ymin {
			ymin = p.Y
		}
		if p.X > xmax {
			xmax = p.X
		}
		if p.Y > ymax {
			ymax = p.Y
		}
		if i > 0 {
			length += dist(points[i-1], p)
		}
	}

	w := int32(width)
	return Stats{
		BBox:   BBox{XMin: xmin - w, YMin: ymin - w, XMax: xmax + w, YMax: ymax + w},
		Length: length,
	}
}

// Process runs the full pipeline on the raw samples of one completed
// stroke. It is deterministic: identical input yields identical output.
// The output has at least two points when the input does, never more points
// than the input, and no duplicate consecutive points. The one exception is
// a stroke that collapses to a single spot, which yields a single point.
func Process(raw []protocol.Point, width uint32) Result {
	stats := ComputeStats(raw, width)

	if len(raw) < 2 {
		return Result{Points: raw, Stats: stats}
	}

	first := raw[0]
	last := raw[len(raw)-1]
	chord := dist(first, last)

	closed := false
	if stats.Length > 0 {
		if math.Abs(stats.Length-chord)/stats.Length < straightLineRatio {
			return Result{Points: []protocol.Point{first, last}, Stats: stats}
		}
		closed = chord < stats.Length/10
	}

	smoothed := smooth(raw)
	simplified := simplify(smoothed)
	points := roundPoints(simplified)

	return Result{Points: points, Closed: closed, Stats: stats}
}

// smooth applies an exponential weighted moving average, anchoring the
// first point, to strip hand-jitter while keeping the path shape.
func smooth(points []protocol.Point) []fpoint {
	out := make([]fpoint, len(points))
	out[0] = fpoint{float64(points[0].X), float64(points[0].Y)}
	for i := 1; i < len(points); i++ {
		prev := out[i-1]
		out[i] = fpoint{
			x: smoothingAlpha*float64(points[i].X) + (1-smoothingAlpha)*prev.x,
			y: smoothingAlpha*float64(points[i].Y) + (1-smoothingAlpha)*prev.y,
		}
	}
	return out
}

// simplify is Douglas-Peucker: keep the point of maximum perpendicular
// distance from the chord when it exceeds the tolerance, recurse on both
// halves, drop everything else. First and last points are always kept.
func simplify(points []fpoint) []fpoint {
	out := make([]fpoint, 0, len(points))
	out = append(out, points[0])
	out = simplifyRange(points, 0, len(points)-1, out)
	out = append(out, points[len(points)-1])
	return out
}

func simplifyRange(points []fpoint, start, end int, out []fpoint) []fpoint {
	max := farthestFromChord(points, start, end)
	if max == -1 {
		return out
	}
	out = simplifyRange(points, start, max, out)
	out = append(out, points[max])
	return simplifyRange(points, max, end, out)
}

// farthestFromChord returns the index of the interior point with maximal
// perpendicular distance from the start-end chord, or -1 when no point
// deviates more than the tolerance.
func farthestFromChord(points []fpoint, start, end int) int {
	a := points[start]
	b := points[end]

	dx := b.x - a.x
	dy := b.y - a.y
	chord := math.Hypot(dx, dy)

	result := -1
	maxDist := 0.0

	if chord == 0 {
		// Degenerate chord: fall back to distance from the shared endpoint.
		for i := start + 1; i < end; i++ {
			d := math.Hypot(points[i].x-a.x, points[i].y-a.y)
			if d > simplifyEpsilon && d > maxDist {
				result = i
				maxDist = d
			}
		}
		return result
	}

	for i := start + 1; i < end; i++ {
		d := math.Abs(dy*(points[i].x-a.x)-dx*(points[i].y-a.y)) / chord
		if d > simplifyEpsilon && d > maxDist {
			result = i
			maxDist = d
		}
	}
	return result
}

// roundPoints converts back to integer coordinates, dropping any duplicate
// consecutive points the rounding produced. The sequence stays usable as
// spline control points. A stroke whose points all round to one spot comes
// out as a single point: a dot, not a zero-length segment.
func roundPoints(points []fpoint) []protocol.Point {
	out := make([]protocol.Point, 0, len(points))
	for _, p := range points {
		rp := protocol.Point{X: int32(math.Round(p.x)), Y: int32(math.Round(p.y))}
		if n := len(out); n > 0 && out[n-1] == rp {
			continue
		}
		out = append(out, rp)
	}
	return out
}

func dist(a, b protocol.Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
