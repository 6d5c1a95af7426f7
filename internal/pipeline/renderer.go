package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dunamismax/tileflow/internal/geometry"
	"github.com/dunamismax/tileflow/internal/iiif"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Renderer executes crop, scale, rotate, recolor and encode for one request
// at a time. It holds no per-request state and is safe for concurrent use
// as long as its Codec is.
type Renderer struct {
	codec   Codec
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

type Option func(*Renderer)

func WithCodec(c Codec) Option {
	return func(r *Renderer) { r.codec = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Renderer) { r.tracer = t }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

func NewRenderer(enc EncodeOptions, opts ...Option) (*Renderer, error) {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}

	if r.codec == nil {
		codec, err := newCodec(enc)
		if err != nil {
			return nil, fmt.Errorf("build codec: %w", err)
		}
		r.codec = codec
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("tileflow/pipeline")
	}
	return r, nil
}

// RenderFile validates req before reading the source from disk.
func (r *Renderer) RenderFile(ctx context.Context, path string, req iiif.Request) (Tile, error) {
	if err := req.Validate(); err != nil {
		return Tile{}, &StageError{Stage: StageValidate, Err: err}
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return Tile{}, fmt.Errorf("read source %s: %w", path, err)
	}
	return r.Render(ctx, source, req)
}

// Render produces the tile described by req from the encoded source image.
// Every stage runs in order; only scaling is skipped, and only when the crop
// already has the target dimensions. Errors carry the failing stage and no
// partial tile is returned.
func (r *Renderer) Render(ctx context.Context, source []byte, req iiif.Request) (tile Tile, err error) {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "pipeline.render", trace.WithAttributes(
		attribute.String("iiif.identifier", req.Identifier),
		attribute.String("iiif.request", req.Path()),
		attribute.Int("source.bytes", len(source)),
	))
	defer func() {
		outcome := outcomeOK
		if err != nil {
			outcome = outcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, "render failed")
		}
		r.metrics.observeRender(req.Format.String(), outcome, time.Since(started), tile.Len())
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return Tile{}, &StageError{Stage: StageValidate, Err: err}
	}

	var raster Raster
	if err := r.stage(ctx, StageDecode, func() error {
		var derr error
		raster, derr = r.codec.Decode(source)
		return codecError(derr)
	}); err != nil {
		return Tile{}, err
	}
	defer func() { raster.Close() }()

	var geo geometry.Geometry
	if err := r.stage(ctx, StageResolve, func() error {
		w, h := raster.Dimensions()
		var rerr error
		geo, rerr = geometry.Resolve(w, h, req.Region, req.Size)
		return rerr
	}); err != nil {
		return Tile{}, err
	}

	if err := r.apply(ctx, StageCrop, &raster, func(in Raster) (Raster, error) {
		return r.codec.Crop(in, geo.Box)
	}); err != nil {
		return Tile{}, err
	}

	if w, h := raster.Dimensions(); w != geo.Width || h != geo.Height {
		if err := r.apply(ctx, StageScale, &raster, func(in Raster) (Raster, error) {
			return r.codec.Resize(in, geo.Width, geo.Height)
		}); err != nil {
			return Tile{}, err
		}
	}

	// Mirroring happens before rotation.
	if req.Rotation.Mirror {
		if err := r.apply(ctx, StageRotate, &raster, r.codec.Mirror); err != nil {
			return Tile{}, err
		}
	}
	if err := r.apply(ctx, StageRotate, &raster, func(in Raster) (Raster, error) {
		return r.codec.Rotate(in, req.Rotation.Degrees)
	}); err != nil {
		return Tile{}, err
	}

	if err := r.apply(ctx, StageRecolor, &raster, func(in Raster) (Raster, error) {
		return r.codec.ConvertColor(in, req.Quality)
	}); err != nil {
		return Tile{}, err
	}

	if err := r.apply(ctx, StageSharpen, &raster, r.codec.Sharpen); err != nil {
		return Tile{}, err
	}

	var data []byte
	if err := r.stage(ctx, StageEncode, func() error {
		var eerr error
		data, eerr = r.codec.Encode(raster, req.Format)
		return codecError(eerr)
	}); err != nil {
		return Tile{}, err
	}

	w, h := raster.Dimensions()
	tile = newTile(data, req.Format, w, h)

	r.logger.Debug("rendered tile",
		zap.String("request", req.Path()),
		zap.Stringer("geometry", geo),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("bytes", tile.Len()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return tile, nil
}

// Dimensions decodes source and reports its pixel size.
func (r *Renderer) Dimensions(source []byte) (int, int, error) {
	raster, err := r.codec.Decode(source)
	if err != nil {
		return 0, 0, &StageError{Stage: StageDecode, Err: codecError(err)}
	}
	defer raster.Close()

	w, h := raster.Dimensions()
	return w, h, nil
}

func (r *Renderer) stage(ctx context.Context, stage Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	_, span := r.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	started := time.Now()
	err := fn()
	r.metrics.observeStage(stage, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// apply runs a raster transform and swaps *cur for its result, closing the
// input if the codec produced a new raster.
func (r *Renderer) apply(ctx context.Context, stage Stage, cur *Raster, op func(Raster) (Raster, error)) error {
	return r.stage(ctx, stage, func() error {
		next, err := op(*cur)
		if err != nil {
			return codecError(err)
		}
		if next != *cur {
			(*cur).Close()
			*cur = next
		}
		return nil
	})
}
