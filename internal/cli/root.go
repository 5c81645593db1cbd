// Package cli implements the y4m-segmenter command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage")

// Streams are the standard streams a command talks to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Run dispatches args to a subcommand. Without a known subcommand name the
// arguments are treated as a split invocation.
func Run(ctx context.Context, args []string, streams Streams) error {
	if len(args) == 0 {
		printRootUsage(streams.Err)
		return fmt.Errorf("%w: missing input file", ErrUsage)
	}

	switch args[0] {
	case "split":
		return runSplit(ctx, args[1:], streams)
	case "probe":
		return runProbe(ctx, args[1:], streams)
	case "ranges":
		return runRanges(ctx, args[1:], streams)
	case "serve":
		return runServe(ctx, args[1:], streams)
	case "help", "-h", "--help":
		printRootUsage(streams.Out)
		return nil
	default:
		return runSplit(ctx, args, streams)
	}
}

func printRootUsage(w io.Writer) {
	lines := []string{
		"y4m-segmenter: split a video into fixed-length Y4M segments",
		"",
		"Usage:",
		"  y4m-segmenter [split] [flags] <input> [output-folder]",
		"  y4m-segmenter probe [-json] <input>",
		"  y4m-segmenter ranges [flags] <input> [output-folder]",
		"  y4m-segmenter serve [-port N]",
		"",
		"Commands:",
		"  split     write consecutive segments of SEGMENT_LENGTH frames (default)",
		"  probe     print the properties and frame index summary of a video",
		"  ranges    read \"start end\" requests on stdin and write one file per range",
		"  serve     run the HTTP API",
		"",
		"Run 'y4m-segmenter <command> -h' for command flags.",
	}
	_, _ = fmt.Fprintln(w, strings.Join(lines, "\n"))
}

// parseFlags parses args and wraps flag errors in ErrUsage. -h returns
// flag.ErrHelp unwrapped.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return nil
}
