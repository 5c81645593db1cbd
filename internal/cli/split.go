package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/maauso/y4m-segmenter/internal/bootstrap"
	"github.com/maauso/y4m-segmenter/internal/config"
	"github.com/maauso/y4m-segmenter/internal/job"
	"github.com/maauso/y4m-segmenter/internal/metrics"
	"github.com/maauso/y4m-segmenter/internal/progress"
	"github.com/maauso/y4m-segmenter/internal/storage"
)

// progressBuffer is the number of progress events queued for the renderer
// before new ones are dropped.
const progressBuffer = 256

func runSplit(ctx context.Context, args []string, streams Streams) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	fs.SetOutput(streams.Err)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "usage: y4m-segmenter [split] [flags] <input> [output-folder]")
		fs.PrintDefaults()
	}

	cfg, err := loadConfig(fs, args, bindSegmentFlags)
	if err != nil {
		return err
	}
	input, err := inputArgs(fs, cfg)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLoggerTo(streams.Err)

	seg, st, err := newCLISegmenter(cfg, logger, streams)
	if err != nil {
		return err
	}

	lock, err := storage.AcquireLock(st.Dir())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	var term *progress.Terminal
	var async *progress.Async
	if cfg.Progress {
		term = progress.NewTerminal(streams.Err)
		async = progress.NewAsync(term, progressBuffer)
		seg = seg.With(job.WithReporter(async))
	}

	run, err := seg.Split(ctx, input)
	if async != nil {
		async.Close()
		if n := async.Dropped(); n > 0 {
			logger.Debug("progress events dropped", slog.Uint64("dropped", n))
		}
		if err != nil {
			term.Finish(false, Describe(err))
		} else {
			term.Finish(true, fmt.Sprintf("wrote %d segments, %d frames", len(run.Segments), run.FramesWritten))
		}
	}
	if err != nil {
		return err
	}

	// One line per segment: "id location".
	for _, s := range run.Segments {
		if _, err := fmt.Fprintf(streams.Out, "%d %s\n", s.ID, s.Location); err != nil {
			return err
		}
	}
	return nil
}

// inputArgs reads "<input> [output-folder]" from the positional arguments.
func inputArgs(fs *flag.FlagSet, cfg *config.Config) (string, error) {
	switch fs.NArg() {
	case 1:
	case 2:
		cfg.OutputDir = fs.Arg(1)
	case 0:
		fs.Usage()
		return "", fmt.Errorf("%w: missing input file", ErrUsage)
	default:
		fs.Usage()
		return "", fmt.Errorf("%w: unexpected arguments %q", ErrUsage, fs.Args()[2:])
	}
	return fs.Arg(0), nil
}

// newCLISegmenter builds a segmenter writing into cfg.OutputDir. The CLI
// does not export metrics.
func newCLISegmenter(cfg *config.Config, logger *slog.Logger, streams Streams) (*job.Segmenter, storage.Storage, error) {
	source, err := bootstrap.NewSource(cfg, streams.Err)
	if err != nil {
		return nil, nil, err
	}
	st, err := bootstrap.NewStorage(cfg, cfg.OutputDir, cfg.S3Prefix, logger)
	if err != nil {
		// an unusable output location is a configuration problem
		return nil, nil, fmt.Errorf("%w: %w", job.ErrConfig, err)
	}
	seg, err := bootstrap.NewSegmenter(cfg, logger, source, st, job.WithRecorder(metrics.Nop{}))
	if err != nil {
		return nil, nil, err
	}
	return seg, st, nil
}
