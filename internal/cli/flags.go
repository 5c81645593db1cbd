package cli

import (
	"flag"

	"github.com/maauso/y4m-segmenter/internal/config"
)

// bindSegmentFlags binds the segmentation flags straight onto cfg. The
// current values, loaded from the environment, are the flag defaults, so
// only flags given on the command line change them.
func bindSegmentFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.SegmentLength, "l", cfg.SegmentLength, "segment length in frames")
	fs.IntVar(&cfg.SegmentLength, "segment-length", cfg.SegmentLength, "segment length in frames")
	fs.IntVar(&cfg.IgnoreErrors, "e", cfg.IgnoreErrors, "number of decode errors to tolerate")
	fs.IntVar(&cfg.IgnoreErrors, "ignore-errors", cfg.IgnoreErrors, "number of decode errors to tolerate")
	fs.StringVar(&cfg.OnDecodeError, "on-decode-error", cfg.OnDecodeError, "what to do with an undecodable frame: omit|duplicate")
	fs.StringVar(&cfg.PixelFormat, "pix-fmt", cfg.PixelFormat, "convert frames to this pixel format (e.g. yuv420p)")
	bindCommonFlags(fs, cfg)
}

// bindCommonFlags binds the flags every subcommand accepts.
func bindCommonFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.Verbosity, "v", cfg.Verbosity, "decoder verbosity 0-4")
	fs.IntVar(&cfg.Verbosity, "verbose", cfg.Verbosity, "decoder verbosity 0-4")
	fs.BoolVar(&cfg.Progress, "p", cfg.Progress, "show a progress bar on stderr")
	fs.BoolVar(&cfg.Progress, "progress", cfg.Progress, "show a progress bar on stderr")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text|json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
}

// loadConfig loads the environment, lets bind register flags over it,
// parses args and validates the result.
func loadConfig(fs *flag.FlagSet, args []string, bind func(*flag.FlagSet, *config.Config)) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	bind(fs, cfg)
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
