package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/tileflow/internal/config"
	"github.com/dunamismax/tileflow/internal/domain"
	"github.com/dunamismax/tileflow/internal/id"
	"github.com/dunamismax/tileflow/internal/logging"
	"github.com/dunamismax/tileflow/internal/pipeline"
	"github.com/dunamismax/tileflow/internal/queue"
)

const exampleRequest = "id/full/full/0/default.jpg"

type options struct {
	source     string
	request    string
	out        string
	probe      bool
	enqueue    bool
	sourceKind string
	outputKey  string
	webhookURL string
}

func main() {
	var opts options
	flag.StringVar(&opts.source, "source", "", "source image path, or object key with -enqueue")
	flag.StringVar(&opts.request, "request", "", "Image API request path or URI, e.g. "+exampleRequest)
	flag.StringVar(&opts.out, "out", "-", "output file, - for stdout")
	flag.BoolVar(&opts.probe, "probe", false, "print the source dimensions and exit")
	flag.BoolVar(&opts.enqueue, "enqueue", false, "submit a render job to the queue instead of rendering")
	flag.StringVar(&opts.sourceKind, "source-kind", domain.SourceKindLocalFile, "source kind for -enqueue: local_file or object_store")
	flag.StringVar(&opts.outputKey, "output-key", "", "explicit output key for -enqueue")
	flag.StringVar(&opts.webhookURL, "webhook", "", "completion webhook for -enqueue")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("render")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, opts); err != nil {
		logger.Error("render failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, opts options) error {
	if opts.source == "" {
		return fmt.Errorf("-source is required")
	}
	if opts.enqueue {
		return enqueue(ctx, cfg, logger, opts)
	}

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	renderer, err := pipeline.NewRenderer(
		pipeline.EncodeOptions{JPEGQuality: cfg.Render.JPEGQuality},
		pipeline.WithLogger(logger.Named("pipeline")),
	)
	if err != nil {
		return err
	}

	if opts.probe {
		data, err := os.ReadFile(opts.source)
		if err != nil {
			return err
		}
		w, h, err := renderer.Dimensions(data)
		if err != nil {
			return err
		}
		fmt.Printf("%s %dx%d\n", opts.source, w, h)
		return nil
	}

	req, err := domain.RenderJob{Request: opts.request}.ImageRequest()
	if err != nil {
		return err
	}

	started := time.Now()
	tile, err := renderer.RenderFile(ctx, opts.source, req)
	if err != nil {
		return err
	}

	if err := writeTile(opts.out, tile); err != nil {
		return err
	}

	logger.Info("rendered",
		zap.String("request", req.Path()),
		zap.String("backend", pipeline.Backend()),
		zap.Int("width", tile.Width()),
		zap.Int("height", tile.Height()),
		zap.Int("bytes", tile.Len()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func writeTile(out string, tile pipeline.Tile) error {
	var w io.Writer = os.Stdout
	if out != "-" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := tile.WriteTo(w); err != nil {
		return fmt.Errorf("write tile: %w", err)
	}
	return nil
}

func enqueue(ctx context.Context, cfg config.Config, logger *zap.Logger, opts options) error {
	client := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("queue client close failed", zap.Error(err))
		}
	}()

	job := domain.RenderJob{
		ID:          id.New(),
		Source:      domain.Source{Kind: opts.sourceKind, Key: opts.source},
		Request:     opts.request,
		OutputKey:   opts.outputKey,
		WebhookURL:  opts.webhookURL,
		RequestedAt: time.Now().UTC(),
	}

	info, err := client.EnqueueRender(ctx, job)
	if err != nil {
		return err
	}

	logger.Info("enqueued", zap.String("job_id", job.ID), zap.String("queue", info.Queue))
	fmt.Println(job.ID)
	return nil
}
