package pipeline

import (
	"bytes"
	"io"

	"github.com/dunamismax/tileflow/internal/iiif"
)

// Tile is an encoded render result. It is immutable: accessors never expose
// the backing buffer for writing.
type Tile struct {
	data   []byte
	format iiif.Format
	width  int
	height int
}

func newTile(data []byte, format iiif.Format, width, height int) Tile {
	return Tile{data: data, format: format, width: width, height: height}
}

// Bytes returns a copy of the encoded image.
func (t Tile) Bytes() []byte {
	return bytes.Clone(t.data)
}

// Len is the encoded size in bytes.
func (t Tile) Len() int {
	return len(t.data)
}

func (t Tile) Format() iiif.Format {
	return t.format
}

// MIME is the Content-Type to send the tile with.
func (t Tile) MIME() string {
	return t.format.MIME()
}

// Width and Height are the pixel dimensions of the encoded image.
func (t Tile) Width() int {
	return t.width
}

func (t Tile) Height() int {
	return t.height
}

// Reader streams the tile without copying it.
func (t Tile) Reader() io.Reader {
	return bytes.NewReader(t.data)
}

// WriteTo implements io.WriterTo.
func (t Tile) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(t.data)
	return int64(n), err
}
