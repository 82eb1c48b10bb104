package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawVec(t *rapid.T, label string) Vec3 {
	c := rapid.Float64Range(-30_000_000, 30_000_000)
	return V(c.Draw(t, label+".x"), c.Draw(t, label+".y"), c.Draw(t, label+".z"))
}

func TestSmoothstep_Endpoints(t *testing.T) {
	assert.Equal(t, 0.0, Smoothstep(0))
	assert.Equal(t, 1.0, Smoothstep(1))
	assert.Equal(t, 0.5, Smoothstep(0.5))
}

func TestSmoothstep_Clamps(t *testing.T) {
	assert.Equal(t, 0.0, Smoothstep(-3))
	assert.Equal(t, 1.0, Smoothstep(7))
}

func TestDistanceTo(t *testing.T) {
	assert.Equal(t, 5.0, V(0, 0, 0).DistanceTo(V(3, 4, 0)))
	assert.InDelta(t, math.Sqrt(3), V(1, 1, 1).DistanceTo(V(0, 0, 0)), 1e-12)
}

func TestFloor(t *testing.T) {
	x, y, z := V(10.7, -0.5, 5).Floor()
	assert.Equal(t, []int{10, -1, 5}, []int{x, y, z})
}

func TestIsFinite(t *testing.T) {
	assert.True(t, V(1, 2, 3).IsFinite())
	assert.False(t, V(math.NaN(), 0, 0).IsFinite())
	assert.False(t, V(0, math.Inf(1), 0).IsFinite())
}

func TestPath_Default(t *testing.T) {
	start := V(12.5, 70, -3)
	target := V(0, 420, 0)
	p := Path(start, target, 120)
	require.Len(t, p, 121)
	assert.Equal(t, start, p[0])
	assert.Equal(t, target, p[120])
	assert.InDelta(t, 245.0, p[60].Y, 1e-9)
}

func TestPropertyPathEndpointsAndLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := drawVec(t, "start")
		target := drawVec(t, "target")
		steps := rapid.IntRange(1, 500).Draw(t, "steps")

		p := Path(start, target, steps)
		if len(p) != steps+1 {
			t.Fatalf("len = %d, want %d", len(p), steps+1)
		}
		if p[0] != start {
			t.Fatalf("first point %v != start %v", p[0], start)
		}
		if p[steps] != target {
			t.Fatalf("last point %v != target %v", p[steps], target)
		}
	})
}

func TestPropertySmoothstepMonotonicAndBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		steps := rapid.IntRange(1, 1000).Draw(t, "steps")
		prev := Smoothstep(0)
		if prev != 0 {
			t.Fatalf("ease(0) = %g", prev)
		}
		for i := 1; i <= steps; i++ {
			e := Smoothstep(float64(i) / float64(steps))
			if e < prev {
				t.Fatalf("ease decreased at step %d: %g < %g", i, e, prev)
			}
			if e < 0 || e > 1 {
				t.Fatalf("ease out of bounds at step %d: %g", i, e)
			}
			prev = e
		}
		if prev != 1 {
			t.Fatalf("ease(1) = %g", prev)
		}
	})
}

func TestPropertyPathStaysBetweenEndpoints(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := drawVec(t, "start")
		target := drawVec(t, "target")
		total := start.DistanceTo(target)
		for _, pt := range Path(start, target, 120) {
			if d := start.DistanceTo(pt); d > total*(1+1e-9)+1e-6 {
				t.Fatalf("point %v overshoots: %g > %g", pt, d, total)
			}
		}
	})
}
