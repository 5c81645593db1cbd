package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/maauso/y4m-segmenter/internal/bootstrap"
	"github.com/maauso/y4m-segmenter/internal/config"
	"github.com/maauso/y4m-segmenter/internal/server"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server and of
// the runs still in progress.
const shutdownTimeout = 30 * time.Second

func runServe(ctx context.Context, args []string, streams Streams) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(streams.Err)

	cfg, err := loadConfig(fs, args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
		fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "root folder for run outputs")
		bindSegmentFlags(fs, cfg)
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: serve takes no arguments", ErrUsage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLoggerTo(streams.Err)
	slog.SetDefault(logger)

	logger.Info("starting y4m-segmenter API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("segment_length", cfg.SegmentLength),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	routerCfg := server.DefaultConfig()
	routerCfg.Metrics = deps.Metrics.Handler()
	handlers := server.NewHandlers(deps.RunService, logger)
	router := server.NewRouter(handlers, logger, routerCfg)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, ln, router, deps.RunService.Shutdown, logger)
}

// serve runs an HTTP server on ln until ctx is done, then shuts it down and
// calls drain to stop background work.
func serve(
	ctx context.Context,
	ln net.Listener,
	handler http.Handler,
	drain func(context.Context) error,
	logger *slog.Logger,
) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", ln.Addr().String()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := drain(shutdownCtx); err != nil {
		return fmt.Errorf("stop runs: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
