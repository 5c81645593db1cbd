package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/maauso/y4m-segmenter/internal/bootstrap"
	"github.com/maauso/y4m-segmenter/internal/config"
	"github.com/maauso/y4m-segmenter/internal/index"
	"github.com/maauso/y4m-segmenter/internal/job"
	"github.com/maauso/y4m-segmenter/internal/y4m"
)

type probeResult struct {
	Input       string `json:"input"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FrameRate   string `json:"frame_rate"`
	PixelFormat string `json:"pixel_format"`
	Colorspace  string `json:"colorspace"`
	Interlace   string `json:"interlace"`
	Aspect      string `json:"aspect"`
	FrameSize   int    `json:"frame_size"`
	Frames      int    `json:"frames"`
	Decodable   int    `json:"decodable"`
	Corrupt     int    `json:"corrupt"`
	Unknown     int    `json:"unknown"`
	Header      string `json:"y4m_header"`
}

func runProbe(ctx context.Context, args []string, streams Streams) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(streams.Err)
	asJSON := fs.Bool("json", false, "print JSON")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "usage: y4m-segmenter probe [flags] <input>")
		fs.PrintDefaults()
	}

	cfg, err := loadConfig(fs, args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.StringVar(&cfg.PixelFormat, "pix-fmt", cfg.PixelFormat, "report properties after conversion to this pixel format")
		bindCommonFlags(fs, cfg)
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("%w: probe takes exactly one input", ErrUsage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	res, err := probe(ctx, cfg, streams, fs.Arg(0))
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(streams.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printProbe(streams.Out, res)
}

func probe(ctx context.Context, cfg *config.Config, streams Streams, input string) (probeResult, error) {
	source, err := bootstrap.NewSource(cfg, streams.Err)
	if err != nil {
		return probeResult{}, err
	}
	video, err := source.Open(ctx, input)
	if err != nil {
		return probeResult{}, fmt.Errorf("%w: %w", job.ErrOpen, err)
	}
	defer func() { _ = video.Close() }()

	props := video.Properties()
	entries, err := index.Build(ctx, video)
	if err != nil {
		return probeResult{}, fmt.Errorf("%w: %w", job.ErrOpen, err)
	}
	stats := index.Summarize(entries)

	return probeResult{
		Input:       input,
		Width:       props.Width,
		Height:      props.Height,
		FrameRate:   props.FrameRate.String(),
		PixelFormat: string(props.PixelFormat),
		Colorspace:  props.PixelFormat.Colorspace(),
		Interlace:   string(props.Interlace),
		Aspect:      props.Aspect.String(),
		FrameSize:   props.FrameSize(),
		Frames:      stats.Total,
		Decodable:   stats.Decodable,
		Corrupt:     stats.Corrupt,
		Unknown:     stats.Unknown,
		Header:      strings.TrimSuffix(y4m.HeaderFromProperties(props).String(), "\n"),
	}, nil
}

func printProbe(w io.Writer, r probeResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"input", r.Input},
		{"size", fmt.Sprintf("%dx%d", r.Width, r.Height)},
		{"frame rate", r.FrameRate},
		{"pixel format", r.PixelFormat},
		{"colorspace", r.Colorspace},
		{"interlace", r.Interlace},
		{"aspect", r.Aspect},
		{"frame size", fmt.Sprintf("%d bytes", r.FrameSize)},
		{"frames", fmt.Sprintf("%d (decodable %d, corrupt %d, unknown %d)", r.Frames, r.Decodable, r.Corrupt, r.Unknown)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
