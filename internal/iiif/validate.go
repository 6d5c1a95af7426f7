package iiif

import "math"

// Validate checks the region invariants: a non-full region must have
// non-negative x,y (at most 100 in percent mode) and at least one of w,h
// greater than zero.
func (r Region) Validate() error {
	switch r.Kind {
	case RegionFull:
		return nil
	case RegionPixel, RegionPercent:
	default:
		return NewError(ErrRegion, r.String(), "unknown region kind")
	}

	for _, v := range []float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewError(ErrRegion, r.String(), "values must be finite")
		}
		if r.Kind == RegionPixel && v != math.Trunc(v) {
			return NewError(ErrRegion, r.String(), "pixel values must be integers")
		}
	}

	if r.X < 0 || r.Y < 0 {
		return NewError(ErrRegion, r.String(), "x and y must be >= 0")
	}
	if r.Kind == RegionPercent && (r.X > 100 || r.Y > 100) {
		return NewError(ErrRegion, r.String(), "percent x and y must be within 0-100")
	}
	if r.W <= 0 && r.H <= 0 {
		return NewError(ErrRegion, r.String(), "at least one of w and h must be > 0")
	}
	return nil
}

// Validate checks that exactly one sizing mode is active and that its
// values are positive.
func (s Size) Validate() error {
	var widthSet, heightSet, percentSet bool
	switch s.Kind {
	case SizeFull:
	case SizePercent:
		percentSet = true
	case SizeWidth:
		widthSet = true
	case SizeHeight:
		heightSet = true
	case SizeWidthHeight, SizeBestFit:
		widthSet, heightSet = true, true
	default:
		return NewError(ErrSize, s.String(), "unknown size kind")
	}

	if (!widthSet && s.Width != 0) || (!heightSet && s.Height != 0) || (!percentSet && s.Percent != 0) {
		return NewError(ErrSize, s.String(), "only one sizing mode may be active")
	}
	if percentSet && (!(s.Percent > 0) || math.IsInf(s.Percent, 0)) {
		return NewError(ErrSize, s.String(), "percent must be > 0")
	}
	if widthSet && s.Width <= 0 {
		return NewError(ErrSize, s.String(), "width must be > 0")
	}
	if heightSet && s.Height <= 0 {
		return NewError(ErrSize, s.String(), "height must be > 0")
	}
	return nil
}

// Validate checks that the rotation lies in the closed interval [0, 360].
func (r Rotation) Validate() error {
	if math.IsNaN(r.Degrees) || r.Degrees < 0 || r.Degrees > 360 {
		return NewError(ErrRotation, r.String(), "degrees must be within [0, 360]")
	}
	return nil
}

func (q Quality) Validate() error {
	if _, ok := qualityNames[q]; !ok {
		return NewError(ErrQuality, q.String(), "unknown quality")
	}
	return nil
}

func (f Format) Validate() error {
	if _, ok := formats[f]; !ok {
		return NewError(ErrFormat, f.String(), "unknown format")
	}
	return nil
}
