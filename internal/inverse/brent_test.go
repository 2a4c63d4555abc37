package inverse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrent(t *testing.T) {
	tests := []struct {
		name string
		f    func(float64) float64
		a, b float64
		want float64
	}{
		{"linear", func(x float64) float64 { return 2*x - 3 }, 0, 5, 1.5},
		{"cubic", func(x float64) float64 { return x*x*x - 8 }, 0, 10, 2},
		{"cosine", math.Cos, 1, 2, math.Pi / 2},
		{"decreasing", func(x float64) float64 { return 100 - x*x }, 1, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := func(x float64) (float64, error) { return tt.f(x), nil }
			got, err := brent(f, tt.a, tt.b, tt.f(tt.a), tt.f(tt.b), 1e-9)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-8)
		})
	}

	_, err := brent(func(x float64) (float64, error) { return x * x, nil }, 1, 2, 1, 4, 1e-9)
	assert.ErrorIs(t, err, errNotBracketed)
}
