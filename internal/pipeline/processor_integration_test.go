package pipeline

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dunamismax/tileflow/internal/domain"
	"github.com/dunamismax/tileflow/internal/iiif"
)

func TestLocalProcessor_FileInRenderFileOut(t *testing.T) {
	tmp := t.TempDir()
	sourceRoot := filepath.Join(tmp, "masters")
	outputDir := filepath.Join(tmp, "out")
	require.NoError(t, os.MkdirAll(sourceRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sourceRoot, "input.png"), buildTestPNG(t, 240, 120), 0o644))

	processor, err := NewLocalProcessor(sourceRoot, outputDir, EncodeOptions{JPEGQuality: 75})
	require.NoError(t, err)

	out, err := processor.Process(context.Background(), domain.RenderJob{
		ID:      "job-local-1",
		Source:  domain.Source{Kind: domain.SourceKindLocalFile, Key: "input.png"},
		Request: "input/full/80,/0/default.jpg",
	})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(outputDir, "input", "full", "80,", "0", "default.jpg"), out.Location)
	require.Equal(t, 80, out.Tile.Width())
	require.Equal(t, 40, out.Tile.Height())

	f, err := os.Open(out.Location)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 80, cfg.Width)
}

func TestLocalProcessor_ExplicitOutputKey(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "input.png"), buildTestPNG(t, 32, 32), 0o644))

	processor, err := NewLocalProcessor(tmp, filepath.Join(tmp, "out"), EncodeOptions{})
	require.NoError(t, err)

	out, err := processor.Process(context.Background(), domain.RenderJob{
		ID:        "job-key",
		Source:    domain.Source{Kind: domain.SourceKindLocalFile, Key: "input.png"},
		Request:   "input/full/full/0/gray.png",
		OutputKey: "../../escape/thumb.png",
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "out", "_", "_", "escape", "thumb.png"), out.Location)
}

func TestLocalProcessor_MalformedRequestSkipsFetch(t *testing.T) {
	fetcher := &countingFetcher{}
	renderer, err := NewRenderer(EncodeOptions{})
	require.NoError(t, err)
	processor := NewProcessor(fetcher, renderer, discardEmitter{})

	_, err = processor.Process(context.Background(), domain.RenderJob{
		ID:      "job-bad",
		Source:  domain.Source{Kind: domain.SourceKindLocalFile, Key: "input.png"},
		Request: "input/full/full/0/sepia.jpg",
	})
	require.ErrorIs(t, err, iiif.ErrQuality)
	require.Zero(t, fetcher.calls)
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor("", t.TempDir(), EncodeOptions{})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), domain.RenderJob{
		ID:      "job-unsupported",
		Source:  domain.Source{Kind: domain.SourceKindObjectStore, Key: "masters/source.tif"},
		Request: "source/full/full/0/default.jpg",
	})
	require.ErrorIs(t, err, ErrUnsupportedSourceType)
}

func TestLocalFileFetcher_StaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "inside.png"), []byte("ok"), 0o644))

	f := LocalFileFetcher{Root: root}
	require.Equal(t, filepath.Join(root, "etc", "passwd"), f.resolve("../../etc/passwd"))

	data, err := f.Fetch(context.Background(), domain.Source{Kind: domain.SourceKindLocalFile, Key: "/inside.png"})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), data)
}

func TestObjectStoreStages(t *testing.T) {
	store := &memoryObjectStore{objects: map[string][]byte{"masters/a.png": buildTestPNG(t, 64, 64)}}
	renderer, err := NewRenderer(EncodeOptions{})
	require.NoError(t, err)

	fetcher := SourceFetcher{ObjectStore: &ObjectStoreFetcher{Store: store}}
	processor := NewProcessor(fetcher, renderer, ObjectStoreEmitter{Store: store, Prefix: "tiles"})

	out, err := processor.Process(context.Background(), domain.RenderJob{
		ID:      "job-os",
		Source:  domain.Source{Kind: domain.SourceKindObjectStore, Key: "masters/a.png"},
		Request: "https://iiif.example.org/iiif/a/0,0,32,32/16,16/0/default.png",
	})
	require.NoError(t, err)
	require.Equal(t, "tiles/a/0,0,32,32/16,16/0/default.png", out.Location)
	require.Equal(t, "image/png", store.types[out.Location])
	require.Equal(t, out.Tile.Bytes(), store.objects[out.Location])

	_, err = processor.Process(context.Background(), domain.RenderJob{
		ID:      "job-missing",
		Source:  domain.Source{Kind: domain.SourceKindObjectStore, Key: "masters/missing.png"},
		Request: "a/full/full/0/default.png",
	})
	require.ErrorIs(t, err, errObjectMissing)

	_, err = fetcher.Fetch(context.Background(), domain.Source{Kind: "ftp", Key: "x"})
	require.ErrorIs(t, err, ErrUnsupportedSourceType)
}

func TestSanitizePathToken(t *testing.T) {
	require.Equal(t, "_", sanitizePathToken(".."))
	require.Equal(t, "_", sanitizePathToken(""))
	require.Equal(t, "pct_10,10,50,50", sanitizePathToken("pct:10,10,50,50"))
	require.Equal(t, "!90", sanitizePathToken("!90"))
	require.Equal(t, "ff139pd0160_252FK90113-43", sanitizePathToken("ff139pd0160%252FK90113-43"))
}

type countingFetcher struct {
	calls int
}

func (f *countingFetcher) Fetch(context.Context, domain.Source) ([]byte, error) {
	f.calls++
	return nil, errors.New("should not be called")
}

var errObjectMissing = errors.New("object missing")

type memoryObjectStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (s *memoryObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errObjectMissing
	}
	return data, nil
}

func (s *memoryObjectStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if s.types == nil {
		s.types = map[string]string{}
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}
