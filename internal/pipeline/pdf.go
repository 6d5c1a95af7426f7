package pipeline

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"
)

// encodePDF wraps a PNG-encoded tile in a single-page PDF sized to the image,
// one point per pixel.
func encodePDF(pngData []byte, width, height int) ([]byte, error) {
	w, h := float64(width), float64(height)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("tile", opts, bytes.NewReader(pngData))
	pdf.ImageOptions("tile", 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}
