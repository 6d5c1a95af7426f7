//go:build govips && cgo

package pipeline

import (
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/tileflow/internal/iiif"
)

type vipsRaster struct {
	ref     *vips.ImageRef
	bitonal bool
}

func (r *vipsRaster) Dimensions() (int, int) {
	return r.ref.Width(), r.ref.Height()
}

func (r *vipsRaster) Close() {
	if r.ref != nil {
		r.ref.Close()
		r.ref = nil
	}
}

// vipsCodec drives libvips. Every transform mutates the ImageRef in place, so
// the renderer never has to swap rasters.
type vipsCodec struct {
	opts EncodeOptions
}

func asVips(r Raster) (*vipsRaster, error) {
	vr, ok := r.(*vipsRaster)
	if !ok || vr == nil || vr.ref == nil {
		return nil, fmt.Errorf("%w: raster %T not produced by this codec", ErrCodec, r)
	}
	return vr, nil
}

func (c vipsCodec) Decode(data []byte) (Raster, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode source image: empty input")
	}
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("auto-rotate source image: %w", err)
	}
	return &vipsRaster{ref: ref}, nil
}

func (c vipsCodec) Crop(r Raster, box image.Rectangle) (Raster, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}
	if err := vr.ref.ExtractArea(box.Min.X, box.Min.Y, box.Dx(), box.Dy()); err != nil {
		return nil, fmt.Errorf("crop %v: %w", box, err)
	}
	return vr, nil
}

func (c vipsCodec) Resize(r Raster, width, height int) (Raster, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}
	if err := vr.ref.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
		return nil, fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}
	return vr, nil
}

func (c vipsCodec) Mirror(r Raster) (Raster, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}
	if err := vr.ref.Flip(vips.DirectionHorizontal); err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	return vr, nil
}

func (c vipsCodec) Rotate(r Raster, degrees float64) (Raster, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}

	switch degrees {
	case 0, 360:
		return vr, nil
	case 90:
		err = vr.ref.Rotate(vips.Angle90)
	case 180:
		err = vr.ref.Rotate(vips.Angle180)
	case 270:
		err = vr.ref.Rotate(vips.Angle270)
	default:
		err = vr.ref.Similarity(1, degrees, &vips.ColorRGBA{}, 0, 0, 0, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("rotate %v: %w", degrees, err)
	}
	return vr, nil
}

func (c vipsCodec) ConvertColor(r Raster, quality iiif.Quality) (Raster, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}

	switch quality {
	case iiif.QualityDefault:
		return vr, nil
	case iiif.QualityColor:
		err = vr.ref.ToColorSpace(vips.InterpretationSRGB)
	case iiif.QualityGray:
		err = vr.ref.ToColorSpace(vips.InterpretationBW)
	case iiif.QualityBitonal:
		err = c.threshold(vr)
	default:
		return nil, fmt.Errorf("convert color: unknown quality %v", quality)
	}
	if err != nil {
		return nil, fmt.Errorf("convert color to %s: %w", quality, err)
	}
	return vr, nil
}

// threshold sharpens, then maps luminance below 128 to black and the rest
// to white.
func (c vipsCodec) threshold(vr *vipsRaster) error {
	if vr.ref.HasAlpha() {
		if err := vr.ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return err
		}
	}
	if err := vr.ref.ToColorSpace(vips.InterpretationBW); err != nil {
		return err
	}
	if err := c.unsharp(vr); err != nil {
		return err
	}
	if err := vr.ref.Linear([]float64{510}, []float64{-127.5 * 510}); err != nil {
		return err
	}
	if err := vr.ref.Cast(vips.BandFormatUchar); err != nil {
		return err
	}
	vr.bitonal = true
	return nil
}

func (c vipsCodec) Sharpen(r Raster) (Raster, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}
	if vr.bitonal {
		return vr, nil
	}
	if err := c.unsharp(vr); err != nil {
		return nil, fmt.Errorf("sharpen: %w", err)
	}
	return vr, nil
}

func (c vipsCodec) unsharp(vr *vipsRaster) error {
	return vr.ref.Sharpen(UnsharpRadius/2, UnsharpThreshold, UnsharpPercent/50)
}

func (c vipsCodec) Encode(r Raster, format iiif.Format) ([]byte, error) {
	vr, err := asVips(r)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case iiif.FormatJPG:
		params := vips.NewJpegExportParams()
		params.Quality = c.opts.jpegQuality()
		data, _, err = vr.ref.ExportJpeg(params)
	case iiif.FormatPNG:
		data, _, err = vr.ref.ExportPng(vips.NewPngExportParams())
	case iiif.FormatGIF:
		data, _, err = vr.ref.ExportGIF(vips.NewGifExportParams())
	case iiif.FormatTIF:
		data, _, err = vr.ref.ExportTiff(vips.NewTiffExportParams())
	case iiif.FormatJP2:
		data, _, err = vr.ref.ExportJp2k(vips.NewJp2kExportParams())
	case iiif.FormatPDF:
		if data, _, err = vr.ref.ExportPng(vips.NewPngExportParams()); err != nil {
			break
		}
		return encodePDF(data, vr.ref.Width(), vr.ref.Height())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return data, nil
}
