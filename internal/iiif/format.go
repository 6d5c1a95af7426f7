package iiif

import (
	"fmt"
	"strings"
)

// Format is an output encoding. Each format maps to exactly one MIME type.
type Format int

const (
	FormatJPG Format = iota
	FormatTIF
	FormatPNG
	FormatGIF
	FormatJP2
	FormatPDF
)

type formatInfo struct {
	ext  string
	mime string
}

var formats = map[Format]formatInfo{
	FormatJPG: {ext: "jpg", mime: "image/jpeg"},
	FormatTIF: {ext: "tif", mime: "image/tiff"},
	FormatPNG: {ext: "png", mime: "image/png"},
	FormatGIF: {ext: "gif", mime: "image/gif"},
	FormatJP2: {ext: "jp2", mime: "image/jp2"},
	FormatPDF: {ext: "pdf", mime: "application/pdf"},
}

// Formats lists every supported format in declaration order.
func Formats() []Format {
	return []Format{FormatJPG, FormatTIF, FormatPNG, FormatGIF, FormatJP2, FormatPDF}
}

// ParseFormat is a case-insensitive lookup of the format extension.
// Structurally valid but unsupported extensions such as "bmp" fail.
func ParseFormat(s string) (Format, error) {
	lower := strings.ToLower(s)
	for f, info := range formats {
		if info.ext == lower {
			return f, nil
		}
	}
	return 0, NewError(ErrFormat, s, "unsupported format")
}

// Extension returns the path extension without the leading dot.
func (f Format) Extension() string {
	return formats[f].ext
}

// MIME returns the Content-Type for f.
func (f Format) MIME() string {
	return formats[f].mime
}

func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.ext
	}
	return fmt.Sprintf("Format(%d)", int(f))
}
