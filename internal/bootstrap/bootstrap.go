// Package bootstrap wires configuration into the segmenter's collaborators.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/maauso/y4m-segmenter/internal/config"
	"github.com/maauso/y4m-segmenter/internal/job"
	"github.com/maauso/y4m-segmenter/internal/media"
	"github.com/maauso/y4m-segmenter/internal/metrics"
	"github.com/maauso/y4m-segmenter/internal/storage"
	"github.com/maauso/y4m-segmenter/internal/y4m"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	RunService *job.Service
	Metrics    *metrics.Collector
}

// NewDependencies creates and initializes all dependencies for serve mode.
// Every run writes into its own folder under OUTPUT_DIR.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	source, err := NewSource(cfg, nil)
	if err != nil {
		return nil, err
	}

	root, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	collector := metrics.NewCollector()
	segmenter, err := NewSegmenter(cfg, logger, source, root, job.WithRecorder(collector))
	if err != nil {
		return nil, err
	}

	factory := func(runID string) (storage.Storage, error) {
		return NewStorage(cfg, filepath.Join(root.Dir(), runID), path.Join(cfg.S3Prefix, runID), logger)
	}

	return &Dependencies{
		RunService: job.NewService(job.NewMemoryRepository(), segmenter, factory, logger),
		Metrics:    collector,
	}, nil
}

// NewSegmenter builds a Segmenter from the configured segmentation settings.
// opts are applied after the configuration.
func NewSegmenter(
	cfg *config.Config,
	logger *slog.Logger,
	source media.Source,
	st storage.Storage,
	opts ...job.Option,
) (*job.Segmenter, error) {
	policy, err := job.ParseDecodePolicy(cfg.OnDecodeError)
	if err != nil {
		return nil, err
	}

	base := []job.Option{
		job.WithSegmentLength(cfg.SegmentLength),
		job.WithTolerance(cfg.IgnoreErrors),
		job.WithDecodePolicy(policy),
		job.WithLogger(logger),
	}
	return job.NewSegmenter(source, st, append(base, opts...)...), nil
}

// NewSource returns the frame source for the configured decoder. Y4M inputs
// are read directly unless a pixel format conversion is requested.
// Decoder diagnostics go to stderr when verbosity is above zero.
func NewSource(cfg *config.Config, stderr io.Writer) (media.Source, error) {
	ffOpts := []media.FFmpegOption{
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithVerbosity(cfg.Verbosity),
	}
	if cfg.PixelFormat != "" {
		f, err := media.ParsePixelFormat(cfg.PixelFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", job.ErrConfig, err)
		}
		ffOpts = append(ffOpts, media.WithPixelFormat(f))
	}
	if stderr != nil && cfg.Verbosity > 0 {
		ffOpts = append(ffOpts, media.WithStderr(stderr))
	}

	return &inputSource{
		ffmpeg:    media.NewFFmpegSource(cfg.FFmpegPath, ffOpts...),
		y4m:       y4m.NewSource(),
		directY4M: cfg.PixelFormat == "",
	}, nil
}

// NewStorage creates the appropriate storage backend based on configuration.
func NewStorage(cfg *config.Config, dir, prefix string, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          prefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			KeepLocal:       cfg.KeepLocal,
		}
		s3Store, err := storage.NewS3Storage(dir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", prefix),
			slog.String("output_dir", dir),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("output_dir", dir),
	)
	return localStore, nil
}

// inputSource picks a decoder by input extension.
type inputSource struct {
	ffmpeg    media.Source
	y4m       media.Source
	directY4M bool
}

func (s *inputSource) Open(ctx context.Context, p string) (media.Video, error) {
	if s.directY4M && strings.EqualFold(filepath.Ext(p), ".y4m") {
		return s.y4m.Open(ctx, p)
	}
	return s.ffmpeg.Open(ctx, p)
}
