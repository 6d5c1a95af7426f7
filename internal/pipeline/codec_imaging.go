//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
	"github.com/dunamismax/tileflow/internal/iiif"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const bitonalLevel = 128

type imageRaster struct {
	img     image.Image
	gray    bool
	bitonal bool
}

func (r *imageRaster) Dimensions() (int, int) {
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}

// Close drops the pixel buffer; the garbage collector owns the memory.
func (r *imageRaster) Close() {
	r.img = nil
}

// imagingCodec is the pure-Go codec. Decoding, cropping, flipping, rotation
// and encoding go through imaging; resampling uses bicubic from nfnt/resize
// and sharpening and thresholding come from bild.
type imagingCodec struct {
	opts EncodeOptions
}

func newImagingCodec(opts EncodeOptions) *imagingCodec {
	return &imagingCodec{opts: opts}
}

func asImage(r Raster) (*imageRaster, error) {
	ir, ok := r.(*imageRaster)
	if !ok || ir == nil || ir.img == nil {
		return nil, fmt.Errorf("%w: raster %T not produced by this codec", ErrCodec, r)
	}
	return ir, nil
}

func (c *imagingCodec) Decode(data []byte) (Raster, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode source image: empty input")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	_, gray := img.(*image.Gray)
	return &imageRaster{img: img, gray: gray}, nil
}

func (c *imagingCodec) Crop(r Raster, box image.Rectangle) (Raster, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}
	bounds := ir.img.Bounds()
	abs := box.Add(bounds.Min)
	if !abs.In(bounds) || abs.Empty() {
		return nil, fmt.Errorf("crop %v outside %dx%d image", box, bounds.Dx(), bounds.Dy())
	}
	return &imageRaster{img: imaging.Crop(ir.img, abs), gray: ir.gray, bitonal: ir.bitonal}, nil
}

func (c *imagingCodec) Resize(r Raster, width, height int) (Raster, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("resize to %dx%d", width, height)
	}
	out := resize.Resize(uint(width), uint(height), ir.img, resize.Bicubic)
	return &imageRaster{img: out, gray: ir.gray, bitonal: ir.bitonal}, nil
}

func (c *imagingCodec) Mirror(r Raster) (Raster, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}
	return &imageRaster{img: imaging.FlipH(ir.img), gray: ir.gray, bitonal: ir.bitonal}, nil
}

func (c *imagingCodec) Rotate(r Raster, degrees float64) (Raster, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}

	var out image.Image
	switch degrees {
	case 0, 360:
		return ir, nil
	case 90:
		out = imaging.Rotate270(ir.img)
	case 180:
		out = imaging.Rotate180(ir.img)
	case 270:
		out = imaging.Rotate90(ir.img)
	default:
		// imaging turns counter-clockwise.
		out = imaging.Rotate(ir.img, -degrees, color.Transparent)
	}
	return &imageRaster{img: out, gray: ir.gray, bitonal: ir.bitonal}, nil
}

func (c *imagingCodec) ConvertColor(r Raster, quality iiif.Quality) (Raster, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}

	switch quality {
	case iiif.QualityDefault:
		return ir, nil
	case iiif.QualityColor:
		return &imageRaster{img: imaging.Clone(ir.img)}, nil
	case iiif.QualityGray:
		return &imageRaster{img: toGray(ir.img), gray: true}, nil
	case iiif.QualityBitonal:
		flat := imaging.Overlay(imaging.New(ir.img.Bounds().Dx(), ir.img.Bounds().Dy(), color.White), ir.img, image.Point{}, 1)
		return &imageRaster{img: segment.Threshold(unsharp(flat), bitonalLevel), gray: true, bitonal: true}, nil
	default:
		return nil, fmt.Errorf("convert color: unknown quality %v", quality)
	}
}

// Sharpen applies the unsharp mask. Bitonal rasters were sharpened before
// thresholding and pass through untouched.
func (c *imagingCodec) Sharpen(r Raster) (Raster, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}
	if ir.bitonal {
		return ir, nil
	}

	sharp := unsharp(ir.img)
	if ir.gray {
		return &imageRaster{img: toGray(sharp), gray: true}, nil
	}
	return &imageRaster{img: sharp}, nil
}

func (c *imagingCodec) Encode(r Raster, format iiif.Format) ([]byte, error) {
	ir, err := asImage(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case iiif.FormatJPG:
		err = imaging.Encode(&buf, ir.img, imaging.JPEG, imaging.JPEGQuality(c.opts.jpegQuality()))
	case iiif.FormatPNG:
		err = imaging.Encode(&buf, ir.img, imaging.PNG)
	case iiif.FormatGIF:
		err = imaging.Encode(&buf, ir.img, imaging.GIF)
	case iiif.FormatTIF:
		err = imaging.Encode(&buf, ir.img, imaging.TIFF)
	case iiif.FormatPDF:
		if err = imaging.Encode(&buf, ir.img, imaging.PNG); err != nil {
			break
		}
		w, h := ir.Dimensions()
		return encodePDF(buf.Bytes(), w, h)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// unsharp masks img, discarding channel changes smaller than the threshold.
func unsharp(img image.Image) *image.RGBA {
	base := toRGBA(img)
	sharp := effect.UnsharpMask(base, UnsharpRadius, UnsharpPercent/100)
	for i, v := range sharp.Pix {
		if absDiff(v, base.Pix[i]) < UnsharpThreshold {
			sharp.Pix[i] = base.Pix[i]
		}
	}
	return sharp
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
