package iiif

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SizeKind tags which variant of Size is active. Exactly one is active per
// request.
type SizeKind int

const (
	SizeFull SizeKind = iota
	SizePercent
	SizeWidth
	SizeHeight
	SizeWidthHeight
	SizeBestFit
)

func (k SizeKind) String() string {
	switch k {
	case SizeFull:
		return "full"
	case SizePercent:
		return "percent"
	case SizeWidth:
		return "width"
	case SizeHeight:
		return "height"
	case SizeWidthHeight:
		return "width,height"
	case SizeBestFit:
		return "best fit"
	default:
		return fmt.Sprintf("SizeKind(%d)", int(k))
	}
}

// Size describes the target dimensions applied to the extracted region.
//
//	full      Full
//	pct:n     Percent (n > 0)
//	w,        Width only, height follows the aspect ratio
//	,h        Height only, width follows the aspect ratio
//	w,h       exact Width and Height, aspect ratio not preserved
//	!w,h      best fit inside w x h, aspect ratio preserved
type Size struct {
	Kind    SizeKind
	Width   int
	Height  int
	Percent float64
}

func FullSize() Size {
	return Size{Kind: SizeFull}
}

func PercentSize(p float64) Size {
	return Size{Kind: SizePercent, Percent: p}
}

func WidthSize(w int) Size {
	return Size{Kind: SizeWidth, Width: w}
}

func HeightSize(h int) Size {
	return Size{Kind: SizeHeight, Height: h}
}

func ExactSize(w, h int) Size {
	return Size{Kind: SizeWidthHeight, Width: w, Height: h}
}

func BestFitSize(w, h int) Size {
	return Size{Kind: SizeBestFit, Width: w, Height: h}
}

// ParseSize decodes the size path segment.
func ParseSize(s string) (Size, error) {
	if s == "full" {
		return FullSize(), nil
	}

	if strings.HasPrefix(s, percentPrefix) {
		p, ok := parseDecimal(strings.TrimPrefix(s, percentPrefix), true)
		if !ok {
			return Size{}, NewError(ErrSize, s, "percent must be a number")
		}
		return PercentSize(p), nil
	}

	body := s
	bestFit := strings.HasPrefix(s, "!")
	if bestFit {
		body = s[1:]
	}

	wRaw, hRaw, found := strings.Cut(body, ",")
	if !found || strings.Contains(hRaw, ",") {
		return Size{}, NewError(ErrSize, s, "expected full, pct:n, w,h, w, ,h or !w,h")
	}

	w, err := parseDimension(s, wRaw)
	if err != nil {
		return Size{}, err
	}
	h, err := parseDimension(s, hRaw)
	if err != nil {
		return Size{}, err
	}

	switch {
	case bestFit:
		if wRaw == "" || hRaw == "" {
			return Size{}, NewError(ErrSize, s, "best fit requires both width and height")
		}
		return BestFitSize(w, h), nil
	case wRaw != "" && hRaw != "":
		return ExactSize(w, h), nil
	case wRaw != "":
		return WidthSize(w), nil
	case hRaw != "":
		return HeightSize(h), nil
	default:
		return Size{}, NewError(ErrSize, s, "width and height cannot both be empty")
	}
}

func parseDimension(input, tok string) (int, error) {
	if tok == "" {
		return 0, nil
	}
	v, ok := parseDecimal(tok, false)
	if !ok || math.Abs(v) > math.MaxInt32 {
		return 0, NewError(ErrSize, input, fmt.Sprintf("%q is not an integer", tok))
	}
	return int(v), nil
}

// String returns the canonical path segment for s.
func (s Size) String() string {
	switch s.Kind {
	case SizePercent:
		return percentPrefix + formatNumber(s.Percent)
	case SizeWidth:
		return strconv.Itoa(s.Width) + ","
	case SizeHeight:
		return "," + strconv.Itoa(s.Height)
	case SizeWidthHeight:
		return strconv.Itoa(s.Width) + "," + strconv.Itoa(s.Height)
	case SizeBestFit:
		return "!" + strconv.Itoa(s.Width) + "," + strconv.Itoa(s.Height)
	default:
		return "full"
	}
}
