package iiif

import (
	"fmt"
	"strings"
)

// Quality selects the color treatment of the output.
type Quality int

const (
	QualityDefault Quality = iota
	QualityColor
	QualityGray
	QualityBitonal
)

var qualityNames = map[Quality]string{
	QualityDefault: "default",
	QualityColor:   "color",
	QualityGray:    "gray",
	QualityBitonal: "bitonal",
}

// ParseQuality is a case-insensitive lookup of the quality segment.
func ParseQuality(s string) (Quality, error) {
	lower := strings.ToLower(s)
	for q, name := range qualityNames {
		if name == lower {
			return q, nil
		}
	}
	return 0, NewError(ErrQuality, s, "expected default, color, gray or bitonal")
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}
