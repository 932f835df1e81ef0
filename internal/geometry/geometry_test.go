package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aolo2/desk/internal/protocol"
)

func TestComputeStats(t *testing.T) {
	points := []protocol.Point{{X: 10, Y: 10}, {X: 20, Y: 30}}

	stats := ComputeStats(points, 5)

	assert.Equal(t, BBox{XMin: 5, YMin: 5, XMax: 25, YMax: 35}, stats.BBox)
	assert.InDelta(t, 22.36, stats.Length, 0.01)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, 5)
	assert.Equal(t, Stats{}, stats)
}

func TestStraightLineCollapse(t *testing.T) {
	points := []protocol.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0}, {X: 30, Y: 0}}

	result := Process(points, 5)

	assert.Equal(t, []protocol.Point{{X: 0, Y: 0}, {X: 30, Y: 0}}, result.Points)
	assert.False(t, result.Closed)
	assert.InDelta(t, 30, result.Stats.Length, 0.001)
}

func TestNearStraightLineCollapse(t *testing.T) {
	// Slight wobble, still within 8% length deviation of the chord.
	points := []protocol.Point{{X: 0, Y: 0}, {X: 25, Y: 2}, {X: 50, Y: -2}, {X: 100, Y: 0}}

	result := Process(points, 5)

	assert.Equal(t, []protocol.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, result.Points)
}

func TestClosedLoopDetection(t *testing.T) {
	points := []protocol.Point{
		{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}, {X: 0, Y: 50}, {X: 2, Y: 2},
	}

	result := Process(points, 5)

	assert.True(t, result.Closed)
	require.GreaterOrEqual(t, len(result.Points), 2)
}

func TestOpenStrokeNotClosed(t *testing.T) {
	points := []protocol.Point{{X: 0, Y: 0}, {X: 40, Y: 60}, {X: 0, Y: 120}}

	result := Process(points, 5)

	assert.False(t, result.Closed)
}

func TestDeterminism(t *testing.T) {
	points := []protocol.Point{
		{X: 0, Y: 0}, {X: 5, Y: 13}, {X: 11, Y: 24}, {X: 18, Y: 30},
		{X: 27, Y: 31}, {X: 35, Y: 25}, {X: 41, Y: 14}, {X: 44, Y: 0},
	}

	first := Process(points, 3)
	second := Process(points, 3)

	assert.Equal(t, first, second)
}

func TestPointCountBounds(t *testing.T) {
	// Dense zigzag: far from straight, plenty to simplify.
	var points []protocol.Point
	for i := 0; i < 100; i++ {
		y := int32(0)
		if i%2 == 1 {
			y = 40
		}
		points = append(points, protocol.Point{X: int32(i * 5), Y: y})
	}

	result := Process(points, 2)

	require.GreaterOrEqual(t, len(result.Points), 2)
	assert.LessOrEqual(t, len(result.Points), len(points))
}

func TestSimplifiedHasNoDuplicateConsecutivePoints(t *testing.T) {
	points := []protocol.Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 30},
		{X: 2, Y: 31}, {X: 40, Y: 31}, {X: 40, Y: 0},
	}

	result := Process(points, 2)

	for i := 1; i < len(result.Points); i++ {
		assert.NotEqual(t, result.Points[i-1], result.Points[i], "duplicate at %d", i)
	}
}

func TestSinglePointPassthrough(t *testing.T) {
	points := []protocol.Point{{X: 7, Y: 9}}

	result := Process(points, 5)

	assert.Equal(t, points, result.Points)
	assert.False(t, result.Closed)
}

func TestDegenerateStationaryStroke(t *testing.T) {
	points := []protocol.Point{{X: 7, Y: 9}, {X: 7, Y: 9}, {X: 7, Y: 9}}

	result := Process(points, 5)

	// A stroke that never moved is a dot, not a zero-length segment.
	assert.Equal(t, []protocol.Point{{X: 7, Y: 9}}, result.Points)
	assert.False(t, result.Closed)
}

func TestFirstPointAnchored(t *testing.T) {
	points := []protocol.Point{{X: 10, Y: 20}, {X: 60, Y: 80}, {X: 10, Y: 140}}

	result := Process(points, 5)

	assert.Equal(t, protocol.Point{X: 10, Y: 20}, result.Points[0])
}
