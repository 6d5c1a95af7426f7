package pipeline

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dunamismax/tileflow/internal/iiif"
)

func buildTestPNG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return encodeTestPNG(tb, img)
}

// buildSplitPNG paints the left half red and the right half blue.
func buildSplitPNG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 220, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 220, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return encodeTestPNG(tb, img)
}

func encodeTestPNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()

	var buf bytes.Buffer
	require.NoError(tb, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeTile(t *testing.T, tile Tile) image.Image {
	t.Helper()

	img, _, err := image.Decode(tile.Reader())
	require.NoError(t, err)
	return img
}

func mustParse(t *testing.T, path string) iiif.Request {
	t.Helper()

	req, err := iiif.ParsePath(path)
	require.NoError(t, err)
	return req
}
