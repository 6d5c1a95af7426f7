package iiif

import (
	"fmt"
	"strings"
)

// RegionKind tags which variant of Region is active.
type RegionKind int

const (
	RegionFull RegionKind = iota
	RegionPixel
	RegionPercent
)

func (k RegionKind) String() string {
	switch k {
	case RegionFull:
		return "full"
	case RegionPixel:
		return "pixel"
	case RegionPercent:
		return "percent"
	default:
		return fmt.Sprintf("RegionKind(%d)", int(k))
	}
}

// Region selects the rectangle of the source image to extract. X, Y, W and H
// are pixels for RegionPixel and percentages of the source for RegionPercent;
// they are ignored for RegionFull.
type Region struct {
	Kind       RegionKind
	X, Y, W, H float64
}

// FullRegion is the whole source image.
func FullRegion() Region {
	return Region{Kind: RegionFull}
}

// PixelRegion is an absolute x,y,w,h box.
func PixelRegion(x, y, w, h int) Region {
	return Region{Kind: RegionPixel, X: float64(x), Y: float64(y), W: float64(w), H: float64(h)}
}

// PercentRegion is a pct:x,y,w,h box.
func PercentRegion(x, y, w, h float64) Region {
	return Region{Kind: RegionPercent, X: x, Y: y, W: w, H: h}
}

// ParseRegion decodes the region path segment: "full", "x,y,w,h" or
// "pct:x,y,w,h". Pixel values must be integers; percent values may carry a
// fraction.
func ParseRegion(s string) (Region, error) {
	if s == "full" {
		return FullRegion(), nil
	}

	kind := RegionPixel
	body := s
	if strings.HasPrefix(s, percentPrefix) {
		kind = RegionPercent
		body = strings.TrimPrefix(s, percentPrefix)
	}

	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return Region{}, NewError(ErrRegion, s, "expected full, x,y,w,h or pct:x,y,w,h")
	}

	var v [4]float64
	for i, part := range parts {
		n, ok := parseDecimal(part, kind == RegionPercent)
		if !ok {
			return Region{}, NewError(ErrRegion, s, fmt.Sprintf("%q is not a valid %s value", part, kind))
		}
		v[i] = n
	}

	return Region{Kind: kind, X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

// String returns the canonical path segment for r.
func (r Region) String() string {
	xywh := strings.Join([]string{
		formatNumber(r.X), formatNumber(r.Y), formatNumber(r.W), formatNumber(r.H),
	}, ",")

	switch r.Kind {
	case RegionPixel:
		return xywh
	case RegionPercent:
		return percentPrefix + xywh
	default:
		return "full"
	}
}
