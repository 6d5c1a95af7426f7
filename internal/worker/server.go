package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/tileflow/internal/config"
	"github.com/dunamismax/tileflow/internal/domain"
	"github.com/dunamismax/tileflow/internal/iiif"
	"github.com/dunamismax/tileflow/internal/pipeline"
	"github.com/dunamismax/tileflow/internal/queue"
	"github.com/dunamismax/tileflow/internal/ratelimit"
	"github.com/dunamismax/tileflow/internal/storage"
	"github.com/dunamismax/tileflow/internal/store"
	"github.com/dunamismax/tileflow/internal/webhook"
)

type renderProcessor interface {
	Process(ctx context.Context, job domain.RenderJob) (pipeline.Output, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type limiter interface {
	Allow(ctx context.Context, identifier string) (ratelimit.Decision, error)
}

// Deps are the collaborators a Server drives. Limiter and Webhook may be
// nil; a nil RenderStore keeps the log in memory.
type Deps struct {
	Processor   *pipeline.Processor
	Limiter     *ratelimit.RedisTokenBucket
	Webhook     *webhook.Client
	RenderStore store.RenderStore
	Registry    *prometheus.Registry
}

type Server struct {
	logger      *zap.Logger
	server      *asynq.Server
	sem         chan struct{}
	processor   renderProcessor
	limiter     limiter
	webhook     webhookSender
	renderStore store.RenderStore
	metrics     *metrics
	tracer      trace.Tracer
	now         func() time.Time
}

// throttledError defers a job until its identifier's bucket refills. It is
// not counted as a task failure.
type throttledError struct {
	identifier string
	retryAfter time.Duration
}

func (e *throttledError) Error() string {
	return fmt.Sprintf("render of %s throttled, retry after %s", e.identifier, e.retryAfter)
}

func NewServer(logger *zap.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	if deps.Processor == nil {
		return nil, fmt.Errorf("render processor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.RenderStore == nil {
		deps.RenderStore = store.NewMemoryRenderStore()
	}

	s := &Server{
		logger:      logger,
		sem:         make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:   deps.Processor,
		renderStore: deps.RenderStore,
		metrics:     newMetrics(deps.Registry),
		tracer:      otel.Tracer("tileflow/worker"),
		now:         time.Now,
	}
	if deps.Limiter != nil {
		s.limiter = deps.Limiter
	}
	if deps.Webhook != nil {
		s.webhook = deps.Webhook
	}

	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel:       asynq.InfoLevel,
			Logger:         logger.Named("asynq").Sugar(),
			IsFailure:      isFailure,
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRenderTile, s.handleRenderTile)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func isFailure(err error) bool {
	var throttled *throttledError
	return !errors.As(err, &throttled)
}

func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	var throttled *throttledError
	if errors.As(err, &throttled) && throttled.retryAfter > 0 {
		return throttled.retryAfter
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

// permanent reports failures that retrying cannot fix: a malformed request,
// an undecodable or oversized source, an unsupported output or source kind.
func permanent(err error) bool {
	return iiif.IsRequestError(err) ||
		errors.Is(err, pipeline.ErrCodec) ||
		errors.Is(err, pipeline.ErrUnsupportedSourceType) ||
		errors.Is(err, storage.ErrObjectTooLarge)
}

func (s *Server) handleRenderTile(ctx context.Context, task *asynq.Task) error {
	startedAt := s.now()
	outcome := domain.RenderStatusFailed

	job, err := queue.ParseRenderPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.render_tile", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.source_kind", job.Source.Kind),
		attribute.String("iiif.request", job.Request),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(job.Source.Kind, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(job.Source.Kind, outcome).Inc()
	}()

	logger := s.logger.With(zap.String("job_id", job.ID), zap.String("request", job.Request))

	req, err := job.ImageRequest()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		s.fail(ctx, logger, job, iiif.Request{}, err, startedAt, true)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if err := s.throttle(ctx, logger, req.Identifier); err != nil {
		outcome = "throttled"
		return err
	}

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger.Info("rendering", zap.String("source", job.Source.Key), zap.String("source_kind", job.Source.Kind))

	out, err := s.processor.Process(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		final := permanent(err) || s.lastAttempt(ctx)
		s.fail(ctx, logger, job, req, err, startedAt, final)
		if permanent(err) {
			return fmt.Errorf("render job %s: %w: %w", job.ID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("render job %s: %w", job.ID, err)
	}

	s.succeed(ctx, logger, job, out, startedAt)
	outcome = domain.RenderStatusSucceeded

	// The tile is already emitted and logged; a retry would render it again.
	if err := s.dispatchWebhook(ctx, logger, job, webhook.EventRenderCompleted, webhook.RenderEvent{
		JobID:      job.ID,
		Identifier: req.Identifier,
		Request:    req.Path(),
		Status:     domain.RenderStatusSucceeded,
		Location:   out.Location,
		MIME:       out.Tile.MIME(),
		Width:      out.Tile.Width(),
		Height:     out.Tile.Height(),
		Bytes:      out.Tile.Len(),
		FinishedAt: s.now().UTC(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	span.SetStatus(codes.Ok, "rendered")
	return nil
}

// throttle fails open: a limiter error is logged and the render proceeds.
func (s *Server) throttle(ctx context.Context, logger *zap.Logger, identifier string) error {
	if s.limiter == nil {
		return nil
	}

	decision, err := s.limiter.Allow(ctx, identifier)
	if err != nil {
		logger.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if decision.Allowed {
		return nil
	}

	s.metrics.throttledTotal.Inc()
	logger.Info("render throttled", zap.String("identifier", identifier), zap.Duration("retry_after", decision.RetryAfter))
	return &throttledError{identifier: identifier, retryAfter: decision.RetryAfter}
}

func (s *Server) lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return !ok || retried >= maxRetry
}

func (s *Server) succeed(ctx context.Context, logger *zap.Logger, job domain.RenderJob, out pipeline.Output, startedAt time.Time) {
	tile := out.Tile
	rec := domain.RenderRecord{
		JobID:      job.ID,
		Identifier: out.Request.Identifier,
		Request:    out.Request.Path(),
		Status:     domain.RenderStatusSucceeded,
		OutputKey:  out.Location,
		Format:     tile.Format().String(),
		Width:      tile.Width(),
		Height:     tile.Height(),
		Bytes:      int64(tile.Len()),
		DurationMS: max(1, time.Since(startedAt).Milliseconds()),
		CreatedAt:  s.now().UTC(),
	}
	s.record(ctx, logger, rec)

	s.metrics.pixelsRenderedTotal.Add(float64(rec.Pixels()))
	s.metrics.bytesWrittenTotal.Add(float64(rec.Bytes))

	logger.Info("rendered",
		zap.String("location", out.Location),
		zap.Int("width", rec.Width),
		zap.Int("height", rec.Height),
		zap.Int64("bytes", rec.Bytes),
		zap.Int64("duration_ms", rec.DurationMS),
	)
}

// fail logs the attempt and, once no retry will follow, notifies the job's
// webhook.
func (s *Server) fail(ctx context.Context, logger *zap.Logger, job domain.RenderJob, req iiif.Request, err error, startedAt time.Time, final bool) {
	stage, _ := pipeline.FailedStage(err)
	logger.Warn("render failed", zap.String("stage", string(stage)), zap.Bool("final", final), zap.Error(err))

	rec := domain.RenderRecord{
		JobID:      job.ID,
		Identifier: req.Identifier,
		Request:    job.Request,
		Status:     domain.RenderStatusFailed,
		Error:      err.Error(),
		DurationMS: max(1, time.Since(startedAt).Milliseconds()),
		CreatedAt:  s.now().UTC(),
	}
	if req.Identifier != "" {
		rec.Request = req.Path()
		rec.Format = req.Format.String()
	}
	s.record(ctx, logger, rec)

	if !final {
		return
	}
	_ = s.dispatchWebhook(ctx, logger, job, webhook.EventRenderFailed, webhook.RenderEvent{
		JobID:      job.ID,
		Identifier: req.Identifier,
		Request:    rec.Request,
		Status:     domain.RenderStatusFailed,
		Stage:      string(stage),
		Error:      err.Error(),
		FinishedAt: s.now().UTC(),
	})
}

func (s *Server) record(ctx context.Context, logger *zap.Logger, rec domain.RenderRecord) {
	if s.renderStore == nil {
		return
	}
	if err := s.renderStore.Record(ctx, rec); err != nil {
		logger.Warn("render log write failed", zap.Error(err))
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, logger *zap.Logger, job domain.RenderJob, event string, body webhook.RenderEvent) error {
	if job.WebhookURL == "" || s.webhook == nil {
		return nil
	}

	if err := s.webhook.Send(ctx, job.WebhookURL, event, body); err != nil {
		logger.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}
