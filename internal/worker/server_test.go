package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/dunamismax/tileflow/internal/domain"
	"github.com/dunamismax/tileflow/internal/pipeline"
	"github.com/dunamismax/tileflow/internal/queue"
	"github.com/dunamismax/tileflow/internal/ratelimit"
	"github.com/dunamismax/tileflow/internal/storage"
	"github.com/dunamismax/tileflow/internal/store"
	"github.com/dunamismax/tileflow/internal/webhook"
)

type sentEvent struct {
	endpoint string
	event    string
	payload  webhook.RenderEvent
}

type captureWebhook struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (c *captureWebhook) Send(_ context.Context, endpoint, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{endpoint: endpoint, event: event, payload: payload.(webhook.RenderEvent)})
	return c.err
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    []string
}

func (l *stubLimiter) Allow(_ context.Context, identifier string) (ratelimit.Decision, error) {
	l.calls = append(l.calls, identifier)
	return l.decision, l.err
}

type countingProcessor struct {
	calls int
}

func (p *countingProcessor) Process(context.Context, domain.RenderJob) (pipeline.Output, error) {
	p.calls++
	return pipeline.Output{}, errors.New("unexpected render")
}

type fixture struct {
	server  *Server
	store   *store.MemoryRenderStore
	webhook *captureWebhook
	root    string
	outDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tmp := t.TempDir()
	root := filepath.Join(tmp, "masters")
	outDir := filepath.Join(tmp, "out")
	require.NoError(t, os.MkdirAll(root, 0o755))

	processor, err := pipeline.NewLocalProcessor(root, outDir, pipeline.EncodeOptions{JPEGQuality: 80})
	require.NoError(t, err)

	f := &fixture{
		store:   store.NewMemoryRenderStore(),
		webhook: &captureWebhook{},
		root:    root,
		outDir:  outDir,
	}
	f.server = &Server{
		logger:      zap.NewNop(),
		sem:         make(chan struct{}, 1),
		processor:   processor,
		webhook:     f.webhook,
		renderStore: f.store,
		metrics:     newMetrics(prometheus.NewRegistry()),
		tracer:      noop.NewTracerProvider().Tracer("test"),
		now:         time.Now,
	}
	return f
}

func (f *fixture) writeSource(t *testing.T, name string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, name), buf.Bytes(), 0o644))
}

func renderTask(t *testing.T, job domain.RenderJob) *asynq.Task {
	t.Helper()

	task, err := queue.NewRenderTask(job)
	require.NoError(t, err)
	return task
}

func localJob(id, key, request string) domain.RenderJob {
	return domain.RenderJob{
		ID:         id,
		Source:     domain.Source{Kind: domain.SourceKindLocalFile, Key: key},
		Request:    request,
		WebhookURL: "https://hooks.example.org/tiles",
	}
}

func TestHandleRenderTileSucceeds(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "page.png", 300, 200)

	job := localJob("job-ok", "page.png", "page/full/150,/0/default.png")
	require.NoError(t, f.server.handleRenderTile(context.Background(), renderTask(t, job)))

	rec, ok, err := f.store.Latest(context.Background(), "job-ok")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RenderStatusSucceeded, rec.Status)
	require.Equal(t, "page", rec.Identifier)
	require.Equal(t, "page/full/150,/0/default.png", rec.Request)
	require.Equal(t, "png", rec.Format)
	require.Equal(t, 150, rec.Width)
	require.Equal(t, 100, rec.Height)
	require.Positive(t, rec.Bytes)
	require.FileExists(t, rec.OutputKey)

	require.Len(t, f.webhook.events, 1)
	sent := f.webhook.events[0]
	require.Equal(t, webhook.EventRenderCompleted, sent.event)
	require.Equal(t, job.WebhookURL, sent.endpoint)
	require.Equal(t, "image/png", sent.payload.MIME)
	require.Equal(t, rec.OutputKey, sent.payload.Location)

	require.Equal(t, float64(150*100), testutil.ToFloat64(f.server.metrics.pixelsRenderedTotal))
	require.Equal(t, float64(rec.Bytes), testutil.ToFloat64(f.server.metrics.bytesWrittenTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(f.server.metrics.jobsTotal.WithLabelValues(domain.SourceKindLocalFile, domain.RenderStatusSucceeded)))
	require.Zero(t, testutil.ToFloat64(f.server.metrics.activeJobs))
}

func TestHandleRenderTileRejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)

	err := f.server.handleRenderTile(context.Background(), asynq.NewTask(queue.TypeRenderTile, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.server.handleRenderTile(context.Background(), renderTask(t, domain.RenderJob{ID: "job-empty"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, f.webhook.events)
}

func TestHandleRenderTileInvalidRequestIsFinal(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "page.png", 40, 40)

	job := localJob("job-bad", "page.png", "page/full/full/45/sepia.jpg")
	err := f.server.handleRenderTile(context.Background(), renderTask(t, job))
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec, ok, err := f.store.Latest(context.Background(), "job-bad")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RenderStatusFailed, rec.Status)
	require.Contains(t, rec.Error, "sepia")

	require.Len(t, f.webhook.events, 1)
	require.Equal(t, webhook.EventRenderFailed, f.webhook.events[0].event)
}

func TestHandleRenderTileCorruptSourceSkipsRetry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "broken.png"), []byte("not an image"), 0o644))

	job := localJob("job-corrupt", "broken.png", "broken/full/full/0/default.jpg")
	err := f.server.handleRenderTile(context.Background(), renderTask(t, job))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, pipeline.ErrCodec)

	require.Len(t, f.webhook.events, 1)
	payload := f.webhook.events[0].payload
	require.Equal(t, string(pipeline.StageDecode), payload.Stage)
	require.Equal(t, "broken", payload.Identifier)
}

func TestHandleRenderTileMissingSourceIsRetried(t *testing.T) {
	f := newFixture(t)

	job := localJob("job-missing", "absent.png", "absent/full/full/0/default.jpg")
	err := f.server.handleRenderTile(context.Background(), renderTask(t, job))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, os.ErrNotExist)

	rec, ok, err := f.store.Latest(context.Background(), "job-missing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RenderStatusFailed, rec.Status)
	require.Equal(t, "jpg", rec.Format)
}

func TestHandleRenderTileThrottles(t *testing.T) {
	f := newFixture(t)
	processor := &countingProcessor{}
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 4 * time.Second}}
	f.server.processor = processor
	f.server.limiter = limiter

	job := localJob("job-hot", "hot.png", "hot/full/full/0/default.jpg")
	task := renderTask(t, job)
	err := f.server.handleRenderTile(context.Background(), task)
	require.Error(t, err)

	require.False(t, isFailure(err))
	require.Equal(t, 4*time.Second, retryDelay(1, err, task))
	require.Equal(t, []string{"hot"}, limiter.calls)
	require.Zero(t, processor.calls)
	require.Equal(t, float64(1), testutil.ToFloat64(f.server.metrics.throttledTotal))
	require.Empty(t, f.webhook.events)
}

func TestHandleRenderTileLimiterErrorFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "page.png", 64, 64)
	f.server.limiter = &stubLimiter{err: errors.New("redis down")}

	job := localJob("job-open", "page.png", "page/full/32,/0/gray.jpg")
	require.NoError(t, f.server.handleRenderTile(context.Background(), renderTask(t, job)))
	require.Zero(t, testutil.ToFloat64(f.server.metrics.throttledTotal))
}

func TestHandleRenderTileWebhookFailureDoesNotRerender(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "page.png", 64, 64)
	f.webhook.err = errors.New("connection refused")

	job := localJob("job-hook", "page.png", "page/full/full/0/default.png")
	err := f.server.handleRenderTile(context.Background(), renderTask(t, job))
	require.ErrorContains(t, err, "dispatch webhook")
	require.ErrorIs(t, err, asynq.SkipRetry)

	recs, err := f.store.ByIdentifier(context.Background(), "page", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.RenderStatusSucceeded, recs[0].Status)
	require.Equal(t, float64(1), testutil.ToFloat64(f.server.metrics.jobsTotal.WithLabelValues(domain.SourceKindLocalFile, domain.RenderStatusSucceeded)))
}

func TestRetryDelayFallsBackToDefault(t *testing.T) {
	task := asynq.NewTask(queue.TypeRenderTile, nil)
	err := errors.New("boom")

	require.True(t, isFailure(err))
	require.Positive(t, retryDelay(0, err, task))
}

func TestPermanentErrors(t *testing.T) {
	require.True(t, permanent(pipeline.ErrUnsupportedFormat))
	require.True(t, permanent(pipeline.ErrUnsupportedSourceType))
	require.True(t, permanent(fmt.Errorf("fetch stage: %w", storage.ErrObjectTooLarge)))
	require.False(t, permanent(storage.ErrObjectNotFound))
	require.False(t, permanent(context.DeadlineExceeded))
}
