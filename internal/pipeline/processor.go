package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/tileflow/internal/domain"
	"github.com/dunamismax/tileflow/internal/iiif"
)

// Output describes one emitted tile.
type Output struct {
	Request  iiif.Request
	Location string
	Tile     Tile
}

type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, key string, tile Tile) (location string, err error)
}

// Processor runs a render job end to end: parse, fetch, render, emit.
type Processor struct {
	fetcher  Fetcher
	renderer *Renderer
	emitter  Emitter
}

func NewProcessor(fetcher Fetcher, renderer *Renderer, emitter Emitter) *Processor {
	return &Processor{fetcher: fetcher, renderer: renderer, emitter: emitter}
}

// NewLocalProcessor reads sources below sourceRoot and writes tiles below
// outputDir.
func NewLocalProcessor(sourceRoot, outputDir string, enc EncodeOptions, opts ...Option) (*Processor, error) {
	renderer, err := NewRenderer(enc, opts...)
	if err != nil {
		return nil, err
	}
	return NewProcessor(LocalFileFetcher{Root: sourceRoot}, renderer, LocalFileEmitter{OutputDir: outputDir}), nil
}

func (p *Processor) Renderer() *Renderer {
	return p.renderer
}

// Process parses the job's request before touching the source, so a
// malformed request never costs a fetch.
func (p *Processor) Process(ctx context.Context, job domain.RenderJob) (Output, error) {
	req, err := job.ImageRequest()
	if err != nil {
		return Output{}, fmt.Errorf("parse stage: %w", err)
	}

	source, err := p.fetcher.Fetch(ctx, job.Source)
	if err != nil {
		return Output{}, fmt.Errorf("fetch stage: %w", err)
	}

	tile, err := p.renderer.Render(ctx, source, req)
	if err != nil {
		return Output{}, fmt.Errorf("render %s: %w", req.Path(), err)
	}

	location, err := p.emitter.Emit(ctx, OutputKey(job, req), tile)
	if err != nil {
		return Output{}, fmt.Errorf("emit stage: %w", err)
	}

	return Output{Request: req, Location: location, Tile: tile}, nil
}

// OutputKey is where a job's tile is stored: the job's explicit key, or the
// canonical request path.
func OutputKey(job domain.RenderJob, req iiif.Request) string {
	if key := strings.TrimSpace(job.OutputKey); key != "" {
		return key
	}
	return req.Path()
}

// LocalFileFetcher reads sources from disk. With a Root set, keys resolve
// inside it and cannot climb out.
type LocalFileFetcher struct {
	Root string
}

func (f LocalFileFetcher) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	if !strings.EqualFold(src.Kind, domain.SourceKindLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, src.Kind)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path := f.resolve(src.Key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", path, err)
	}
	return data, nil
}

func (f LocalFileFetcher) resolve(key string) string {
	if strings.TrimSpace(f.Root) == "" {
		return key
	}
	return filepath.Join(f.Root, filepath.Clean(string(filepath.Separator)+key))
}

// LocalFileEmitter writes tiles under OutputDir, one directory level per key
// segment.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(ctx context.Context, key string, tile Tile) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	segments := strings.Split(strings.Trim(key, "/"), "/")
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, e.OutputDir)
	for _, seg := range segments {
		parts = append(parts, sanitizePathToken(seg))
	}
	fullPath := filepath.Join(parts...)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(fullPath, tile.data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}

// sanitizePathToken keeps characters that appear in canonical request paths
// and replaces the rest, so a segment can never name a parent directory.
func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" || in == "." || in == ".." {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("-_.,!", r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
