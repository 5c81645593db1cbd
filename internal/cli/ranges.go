package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/maauso/y4m-segmenter/internal/storage"
)

func runRanges(ctx context.Context, args []string, streams Streams) error {
	fs := flag.NewFlagSet("ranges", flag.ContinueOnError)
	fs.SetOutput(streams.Err)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "usage: y4m-segmenter ranges [flags] <input> [output-folder] < requests")
		_, _ = fmt.Fprintln(fs.Output(), "Prints \"W H N fps_den fps_num\", then answers each \"start end\" line with \"start location\".")
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

	return seg.ExtractRanges(ctx, input, streams.In, streams.Out)
}
