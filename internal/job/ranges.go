package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maauso/y4m-segmenter/internal/index"
	"github.com/maauso/y4m-segmenter/internal/media"
	"github.com/maauso/y4m-segmenter/internal/segment"
	"github.com/maauso/y4m-segmenter/internal/y4m"
)

// ErrInvalidRange is reported for a malformed or empty range request.
var ErrInvalidRange = errors.New("invalid range")

// ExtractRanges serves frame range requests for input.
//
// It first writes "W H N fps_den fps_num" to results, then reads one
// "start end" request per line. end is clamped to the frame count. Each
// request writes "<start>-<end>.y4m" and answers "start location". A request
// that cannot be served answers "error <message>" and the session continues.
// The session ends at EOF on requests, on cancellation or on a write failure.
//
// The input is opened and indexed once per session. Requests that move
// forward keep decoding on the same video; a request that starts before the
// last one ended rewinds it.
func (s *Segmenter) ExtractRanges(ctx context.Context, input string, requests io.Reader, results io.Writer) error {
	if err := s.validate(); err != nil {
		return err
	}
	logger := s.logger.With(slog.String("input", input))

	video, err := s.source.Open(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	session := &rangeSession{source: s.source, input: input, video: video}
	defer session.close(logger)

	session.entries, err = index.Build(ctx, video)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	props := video.Properties()
	header := y4m.HeaderFromProperties(props)
	if err := header.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}

	if _, err := fmt.Fprintf(results, "%d %d %d %d %d\n",
		props.Width, props.Height, props.FrameCount, props.FrameRate.Den, props.FrameRate.Num); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	sc := bufio.NewScanner(requests)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		reply, err := s.serveRange(ctx, logger, session, header, line)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, ErrWrite) {
				return err
			}
			logger.Warn("range request failed", slog.String("request", line), slog.String("error", err.Error()))
			reply = "error " + err.Error()
		}
		if _, err := fmt.Fprintln(results, reply); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read range requests: %w", err)
	}
	return nil
}

// rangeSession is the decoder shared by the requests of one ExtractRanges
// call.
type rangeSession struct {
	source  media.Source
	input   string
	video   media.Video
	entries []index.Entry
	// next is the lowest frame the video can still decode without rewinding.
	next int
}

// seek makes frame start reachable. A video that cannot rewind is reopened.
func (rs *rangeSession) seek(ctx context.Context, start int) error {
	if rs.video != nil && start >= rs.next {
		return nil
	}
	if rs.video != nil {
		if r, ok := rs.video.(media.Rewinder); ok && r.Rewind() == nil {
			rs.next = 0
			return nil
		}
		_ = rs.video.Close()
		rs.video = nil
	}
	video, err := rs.source.Open(ctx, rs.input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	rs.video = video
	rs.next = 0
	return nil
}

func (rs *rangeSession) close(logger *slog.Logger) {
	if rs.video == nil {
		return
	}
	if err := rs.video.Close(); err != nil {
		logger.Warn("close video", slog.String("error", err.Error()))
	}
}

// ParseRange parses a "start end" request against a video of frameCount
// frames. end is clamped to frameCount.
func ParseRange(line string, frameCount int) (start, end int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: want \"start end\", got %q", ErrInvalidRange, line)
	}
	start, err = strconv.Atoi(fields[0])
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("%w: bad start %q", ErrInvalidRange, fields[0])
	}
	end, err = strconv.Atoi(fields[1])
	if err != nil || end < 0 {
		return 0, 0, fmt.Errorf("%w: bad end %q", ErrInvalidRange, fields[1])
	}
	if end > frameCount {
		end = frameCount
	}
	if start >= end {
		return 0, 0, fmt.Errorf("%w: [%d, %d) is empty for %d frames", ErrInvalidRange, start, end, frameCount)
	}
	return start, end, nil
}

// serveRange writes one requested range from the session's video.
func (s *Segmenter) serveRange(
	ctx context.Context,
	logger *slog.Logger,
	session *rangeSession,
	header y4m.Header,
	line string,
) (string, error) {
	start, end, err := ParseRange(line, len(session.entries))
	if err != nil {
		return "", err
	}
	if err := session.seek(ctx, start); err != nil {
		return "", err
	}

	path := s.storage.Path(segment.RangeFileName(start, end))
	w, err := y4m.Create(path, header)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	defer func() { _ = w.Close() }()

	budget := ErrorBudget{Tolerated: s.tolerance}
	err = s.copyFrames(ctx, logger, session.video, w, start, end, frameHooks{
		corrupt: func(idx int) bool { return session.entries[idx].Decodable == media.HintCorrupt },
		failed: func(bool) (ErrorBudget, bool) {
			exceeded := budget.Consume()
			return budget, exceeded
		},
		written:   func(bool) {},
		processed: func(bool) {},
	})
	// the decoder may have advanced anywhere up to end
	session.next = end
	if err != nil {
		return "", err
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	location, err := s.storage.Publish(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: publish range: %w", ErrWrite, err)
	}
	logger.Info("range written",
		slog.Int("start", start),
		slog.Int("end", end),
		slog.Int("frames", w.Frames()),
		slog.String("location", location),
	)
	return fmt.Sprintf("%d %s", start, location), nil
}
