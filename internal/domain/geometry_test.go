package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBox_IoU(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundingBox
		want float64
	}{
		{
			name: "identical boxes",
			a:    BoundingBox{X: 10, Y: 10, Width: 100, Height: 200},
			b:    BoundingBox{X: 10, Y: 10, Width: 100, Height: 200},
			want: 1,
		},
		{
			name: "disjoint boxes",
			a:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b:    BoundingBox{X: 20, Y: 20, Width: 10, Height: 10},
			want: 0,
		},
		{
			name: "touching edges",
			a:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b:    BoundingBox{X: 10, Y: 0, Width: 10, Height: 10},
			want: 0,
		},
		{
			name: "half overlap",
			a:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b:    BoundingBox{X: 5, Y: 0, Width: 10, Height: 10},
			want: 50.0 / 150.0,
		},
		{
			name: "degenerate box",
			a:    BoundingBox{X: 0, Y: 0, Width: 0, Height: 10},
			b:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.a.IoU(tt.b), 1e-9)
			assert.InDelta(t, tt.want, tt.b.IoU(tt.a), 1e-9)
		})
	}
}

func TestBoundingBox_Center(t *testing.T) {
	x, y := BoundingBox{X: 10, Y: 20, Width: 30, Height: 40}.Center()
	assert.Equal(t, 25.0, x)
	assert.Equal(t, 40.0, y)
}
