package pipeline

import (
	"image"

	"github.com/dunamismax/tileflow/internal/iiif"
)

// Unsharp mask applied after recoloring to recover the softness introduced
// by resampling.
const (
	UnsharpRadius    = 2.0
	UnsharpPercent   = 150.0
	UnsharpThreshold = 3
)

const defaultJPEGQuality = 90

// Raster is a decoded image owned by a single render. Implementations must
// be pointer types: the renderer compares rasters to decide whether a
// transform replaced its input.
type Raster interface {
	Dimensions() (width, height int)
	Close()
}

// Codec is the image library behind the pipeline. Each transform either
// modifies its input and returns it, or returns a new raster; the renderer
// closes whichever raster it no longer needs.
type Codec interface {
	Decode(data []byte) (Raster, error)
	Crop(r Raster, box image.Rectangle) (Raster, error)
	Resize(r Raster, width, height int) (Raster, error)
	Mirror(r Raster) (Raster, error)
	// Rotate turns r clockwise, growing the canvas to hold every corner.
	Rotate(r Raster, degrees float64) (Raster, error)
	ConvertColor(r Raster, quality iiif.Quality) (Raster, error)
	Sharpen(r Raster) (Raster, error)
	Encode(r Raster, format iiif.Format) ([]byte, error)
}

// EncodeOptions tune the output encoders.
type EncodeOptions struct {
	JPEGQuality int
}

func (o EncodeOptions) jpegQuality() int {
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		return defaultJPEGQuality
	}
	return o.JPEGQuality
}

// NewCodec returns the codec selected at build time: libvips when built with
// the govips tag and cgo, the pure-Go codec otherwise.
func NewCodec(opts EncodeOptions) (Codec, error) {
	return newCodec(opts)
}
