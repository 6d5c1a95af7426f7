// Package geometry turns region and size directives into concrete pixel
// arithmetic for a source of known dimensions.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/dunamismax/tileflow/internal/iiif"
)

// maxDimension bounds any resolved target edge, so a tiny region scaled by
// a huge size cannot allocate an unbounded raster.
const maxDimension = 1 << 16

// Geometry is the crop box in source pixels and the target dimensions of
// the scaled crop. It is computed once per request.
type Geometry struct {
	Box    image.Rectangle
	Width  int
	Height int
}

// NeedsResize reports whether the crop must be scaled to reach the target.
func (g Geometry) NeedsResize() bool {
	return g.Box.Dx() != g.Width || g.Box.Dy() != g.Height
}

func (g Geometry) String() string {
	return fmt.Sprintf("box=(%d,%d,%d,%d) target=%dx%d",
		g.Box.Min.X, g.Box.Min.Y, g.Box.Max.X, g.Box.Max.Y, g.Width, g.Height)
}

// Resolve computes the clamped crop box and target size. Region failures are
// reported with iiif.ErrRegion and size failures with iiif.ErrSize.
func Resolve(sourceWidth, sourceHeight int, region iiif.Region, size iiif.Size) (Geometry, error) {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Geometry{}, iiif.NewError(iiif.ErrRegion, region.String(),
			fmt.Sprintf("source has no pixels (%dx%d)", sourceWidth, sourceHeight))
	}

	box, err := resolveRegion(sourceWidth, sourceHeight, region)
	if err != nil {
		return Geometry{}, err
	}

	w, h, err := resolveSize(box.Dx(), box.Dy(), size)
	if err != nil {
		return Geometry{}, err
	}

	return Geometry{Box: box, Width: w, Height: h}, nil
}

func resolveRegion(sw, sh int, region iiif.Region) (image.Rectangle, error) {
	var x, y, w, h float64
	switch region.Kind {
	case iiif.RegionFull:
		return image.Rect(0, 0, sw, sh), nil
	case iiif.RegionPixel:
		x, y, w, h = region.X, region.Y, region.W, region.H
	case iiif.RegionPercent:
		// x and w scale with the source width, y and h with its height.
		x = math.Round(region.X * float64(sw) / 100)
		y = math.Round(region.Y * float64(sh) / 100)
		w = math.Round(region.W * float64(sw) / 100)
		h = math.Round(region.H * float64(sh) / 100)
	default:
		return image.Rectangle{}, iiif.NewError(iiif.ErrRegion, region.String(), "unknown region kind")
	}

	left, top, right, bottom := x, y, x+w, y+h
	if right < left || bottom < top {
		return image.Rectangle{}, iiif.NewError(iiif.ErrRegion, region.String(), "region has negative extent")
	}

	box := image.Rectangle{
		Min: image.Pt(clamp(left, sw), clamp(top, sh)),
		Max: image.Pt(clamp(right, sw), clamp(bottom, sh)),
	}
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return image.Rectangle{}, iiif.NewError(iiif.ErrRegion, region.String(),
			fmt.Sprintf("region does not intersect the %dx%d source", sw, sh))
	}
	return box, nil
}

func resolveSize(rw, rh int, size iiif.Size) (int, int, error) {
	fw, fh := float64(rw), float64(rh)

	var w, h float64
	switch size.Kind {
	case iiif.SizeFull:
		w, h = fw, fh
	case iiif.SizeWidthHeight:
		w, h = float64(size.Width), float64(size.Height)
	case iiif.SizeWidth:
		w = float64(size.Width)
		h = math.Round(fh * w / fw)
	case iiif.SizeHeight:
		h = float64(size.Height)
		w = math.Round(fw * h / fh)
	case iiif.SizePercent:
		w = math.Round(fw * size.Percent / 100)
		h = math.Round(fh * size.Percent / 100)
	case iiif.SizeBestFit:
		bw, bh := float64(size.Width), float64(size.Height)
		if bw/fw <= bh/fh {
			w, h = bw, math.Round(fh*bw/fw)
		} else {
			w, h = math.Round(fw*bh/fh), bh
		}
	default:
		return 0, 0, iiif.NewError(iiif.ErrSize, size.String(), "unknown size kind")
	}

	if w < 1 || h < 1 {
		return 0, 0, iiif.NewError(iiif.ErrSize, size.String(),
			fmt.Sprintf("target %vx%v of a %dx%d region has zero area", w, h, rw, rh))
	}
	if w > maxDimension || h > maxDimension {
		return 0, 0, iiif.NewError(iiif.ErrSize, size.String(),
			fmt.Sprintf("target %vx%v exceeds %d pixels per edge", w, h, maxDimension))
	}
	return int(w), int(h), nil
}

func clamp(v float64, limit int) int {
	if v < 0 {
		return 0
	}
	if v > float64(limit) {
		return limit
	}
	return int(v)
}
