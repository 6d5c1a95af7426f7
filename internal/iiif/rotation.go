package iiif

// Rotation is a clockwise rotation in degrees. When Mirror is set the image
// is flipped horizontally before it is rotated.
type Rotation struct {
	Degrees float64
	Mirror  bool
}

// ParseRotation decodes the rotation path segment: "n" or "!n".
func ParseRotation(s string) (Rotation, error) {
	var r Rotation
	body := s
	if len(body) > 0 && body[0] == '!' {
		r.Mirror = true
		body = body[1:]
	}

	deg, ok := parseDecimal(body, true)
	if !ok {
		return Rotation{}, NewError(ErrRotation, s, "degrees must be a number")
	}
	r.Degrees = deg
	return r, nil
}

// IsIdentity reports whether r leaves the image unchanged.
func (r Rotation) IsIdentity() bool {
	return !r.Mirror && (r.Degrees == 0 || r.Degrees == 360)
}

// String returns the canonical path segment for r.
func (r Rotation) String() string {
	if r.Mirror {
		return "!" + formatNumber(r.Degrees)
	}
	return formatNumber(r.Degrees)
}
