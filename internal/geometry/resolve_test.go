package geometry

import (
	"image"
	"math"
	"testing"

	"github.com/dunamismax/tileflow/internal/iiif"
	"github.com/stretchr/testify/require"
)

func TestResolve_FullFull(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3000, 2000}, {17, 4099}} {
		g, err := Resolve(dims[0], dims[1], iiif.FullRegion(), iiif.FullSize())
		require.NoError(t, err)
		require.Equal(t, image.Rect(0, 0, dims[0], dims[1]), g.Box)
		require.Equal(t, dims[0], g.Width)
		require.Equal(t, dims[1], g.Height)
		require.False(t, g.NeedsResize())
	}
}

func TestResolve_ClampsOverflowingRegion(t *testing.T) {
	g, err := Resolve(3000, 2000, iiif.PixelRegion(1400, 1200, 2500, 1075), iiif.WidthSize(1000))
	require.NoError(t, err)

	require.Equal(t, image.Rect(1400, 1200, 3000, 2000), g.Box)
	require.Equal(t, 1600, g.Box.Dx())
	require.Equal(t, 800, g.Box.Dy())
	require.Equal(t, 1000, g.Width)
	require.Equal(t, 500, g.Height)
	require.True(t, g.NeedsResize())
}

func TestResolve_RegionFailures(t *testing.T) {
	tests := []struct {
		name   string
		region iiif.Region
	}{
		{"entirely right of source", iiif.PixelRegion(500, 0, 10, 10)},
		{"entirely below source", iiif.PixelRegion(0, 200, 10, 10)},
		{"starts on the right edge", iiif.PixelRegion(400, 0, 10, 10)},
		{"zero width", iiif.PixelRegion(0, 0, 0, 10)},
		{"negative width", iiif.PixelRegion(10, 10, -5, 10)},
		{"negative percent height", iiif.PercentRegion(10, 10, 10, -5)},
		{"percent past the edge", iiif.PercentRegion(100, 0, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(400, 200, tt.region, iiif.FullSize())
			require.ErrorIs(t, err, iiif.ErrRegion)
		})
	}
}

func TestResolve_EdgesStayInsideSource(t *testing.T) {
	const sw, sh = 320, 240
	for x := 0; x < sw; x += 37 {
		for y := 0; y < sh; y += 29 {
			g, err := Resolve(sw, sh, iiif.PixelRegion(x, y, 1000, 1000), iiif.FullSize())
			require.NoError(t, err)
			require.True(t, g.Box.In(image.Rect(0, 0, sw, sh)), g.String())
		}
	}
}

func TestResolve_PercentMatchesPixels(t *testing.T) {
	pct, err := Resolve(400, 200, iiif.PercentRegion(25, 25, 50, 50), iiif.FullSize())
	require.NoError(t, err)

	px, err := Resolve(400, 200, iiif.PixelRegion(100, 50, 200, 100), iiif.FullSize())
	require.NoError(t, err)

	require.Equal(t, px, pct)
}

func TestResolve_Sizes(t *testing.T) {
	region := iiif.PixelRegion(0, 0, 1600, 800)
	tests := []struct {
		size iiif.Size
		w, h int
	}{
		{iiif.FullSize(), 1600, 800},
		{iiif.ExactSize(100, 100), 100, 100},
		{iiif.WidthSize(1000), 1000, 500},
		{iiif.HeightSize(200), 400, 200},
		{iiif.PercentSize(25), 400, 200},
		{iiif.PercentSize(0.1), 2, 1},
		{iiif.BestFitSize(400, 400), 400, 200},
		{iiif.BestFitSize(1000, 100), 200, 100},
	}

	for _, tt := range tests {
		t.Run(tt.size.String(), func(t *testing.T) {
			g, err := Resolve(1600, 800, region, tt.size)
			require.NoError(t, err)
			require.Equal(t, tt.w, g.Width)
			require.Equal(t, tt.h, g.Height)
		})
	}
}

func TestResolve_RoundsHalfAwayFromZero(t *testing.T) {
	// 3 * 5 / 2 = 7.5
	g, err := Resolve(2, 3, iiif.FullRegion(), iiif.WidthSize(5))
	require.NoError(t, err)
	require.Equal(t, 8, g.Height)
}

func TestResolve_WidthOnlyPreservesAspect(t *testing.T) {
	for rw := 1; rw <= 60; rw += 7 {
		for rh := 1; rh <= 60; rh += 5 {
			for _, w := range []int{3, 50, 999} {
				g, err := Resolve(rw, rh, iiif.FullRegion(), iiif.WidthSize(w))
				if err != nil {
					require.ErrorIs(t, err, iiif.ErrSize)
					continue
				}
				exact := float64(rh) * float64(w) / float64(rw)
				require.Equal(t, w, g.Width)
				require.LessOrEqual(t, math.Abs(float64(g.Height)-exact), 1.0)
			}
		}
	}
}

func TestResolve_ZeroAreaTarget(t *testing.T) {
	_, err := Resolve(1000, 10, iiif.FullRegion(), iiif.WidthSize(10))
	require.ErrorIs(t, err, iiif.ErrSize)

	_, err = Resolve(100, 100, iiif.FullRegion(), iiif.PercentSize(0.1))
	require.ErrorIs(t, err, iiif.ErrSize)

	_, err = Resolve(100, 100, iiif.FullRegion(), iiif.ExactSize(0, 0))
	require.ErrorIs(t, err, iiif.ErrSize)
}

func TestResolve_RejectsOversizedTarget(t *testing.T) {
	_, err := Resolve(100, 100, iiif.FullRegion(), iiif.PercentSize(1e6))
	require.ErrorIs(t, err, iiif.ErrSize)

	g, err := Resolve(100, 50, iiif.FullRegion(), iiif.WidthSize(maxDimension))
	require.NoError(t, err)
	require.Equal(t, 65536, g.Width)
	require.Equal(t, 32768, g.Height)

	_, err = Resolve(100, 50, iiif.FullRegion(), iiif.WidthSize(maxDimension+1))
	require.ErrorIs(t, err, iiif.ErrSize)
}

func TestResolve_EmptySource(t *testing.T) {
	_, err := Resolve(0, 10, iiif.FullRegion(), iiif.FullSize())
	require.ErrorIs(t, err, iiif.ErrRegion)
}
