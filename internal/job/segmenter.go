package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/y4m-segmenter/internal/index"
	"github.com/maauso/y4m-segmenter/internal/media"
	"github.com/maauso/y4m-segmenter/internal/progress"
	"github.com/maauso/y4m-segmenter/internal/segment"
	"github.com/maauso/y4m-segmenter/internal/storage"
	"github.com/maauso/y4m-segmenter/internal/y4m"
)

// DefaultSegmentLength is the target segment length in frames.
const DefaultSegmentLength = 240

// DecodePolicy decides what happens to a tolerated decode failure.
type DecodePolicy string

const (
	// PolicyOmit drops the failed frame; the segment ends up shorter than planned.
	PolicyOmit DecodePolicy = "omit"
	// PolicyDuplicate repeats the last frame written to the current segment.
	// With no such frame the failed frame is omitted.
	PolicyDuplicate DecodePolicy = "duplicate"
)

// ParseDecodePolicy parses "omit" or "duplicate". The empty string is omit.
func ParseDecodePolicy(s string) (DecodePolicy, error) {
	switch DecodePolicy(s) {
	case "", PolicyOmit:
		return PolicyOmit, nil
	case PolicyDuplicate:
		return PolicyDuplicate, nil
	default:
		return "", fmt.Errorf("%w: unknown decode policy %q", ErrConfig, s)
	}
}

// Run outcomes reported to the Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeCancelled = "cancelled"
)

// Recorder receives counters as a run progresses.
type Recorder interface {
	FrameWritten()
	DecodeError()
	SegmentWritten(d time.Duration)
	RunFinished(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) FrameWritten()                {}
func (nopRecorder) DecodeError()                 {}
func (nopRecorder) SegmentWritten(time.Duration) {}
func (nopRecorder) RunFinished(string)           {}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithSegmentLength sets the target segment length in frames.
func WithSegmentLength(n int) Option {
	return func(s *Segmenter) {
		s.segmentLength = n
	}
}

// WithTolerance sets how many decode failures a run tolerates.
func WithTolerance(n int) Option {
	return func(s *Segmenter) {
		s.tolerance = n
	}
}

// WithDecodePolicy sets the handling of tolerated decode failures.
func WithDecodePolicy(p DecodePolicy) Option {
	return func(s *Segmenter) {
		s.policy = p
	}
}

// WithReporter sets the progress reporter. Reporters must not block.
func WithReporter(r progress.Reporter) Option {
	return func(s *Segmenter) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Segmenter) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStorage replaces the output storage.
func WithStorage(st storage.Storage) Option {
	return func(s *Segmenter) {
		if st != nil {
			s.storage = st
		}
	}
}

// Segmenter splits videos into fixed-length Y4M segments.
// All state of a run lives in its Run, so one Segmenter may execute several
// runs concurrently.
type Segmenter struct {
	source   media.Source
	storage  storage.Storage
	reporter progress.Reporter
	recorder Recorder
	logger   *slog.Logger

	segmentLength int
	tolerance     int
	policy        DecodePolicy
}

// NewSegmenter creates a Segmenter reading from source and writing to st.
func NewSegmenter(source media.Source, st storage.Storage, opts ...Option) *Segmenter {
	s := &Segmenter{
		source:        source,
		storage:       st,
		reporter:      progress.Nop{},
		recorder:      nopRecorder{},
		logger:        slog.Default(),
		segmentLength: DefaultSegmentLength,
		policy:        PolicyOmit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With returns a copy of s with opts applied.
func (s *Segmenter) With(opts ...Option) *Segmenter {
	c := *s
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Split runs a full segmentation of input and returns the finished run.
// The returned error is the run's terminal error.
func (s *Segmenter) Split(ctx context.Context, input string) (*Run, error) {
	run := NewRun(input, s.storage.Dir())
	err := s.Execute(ctx, run)
	return run, err
}

// Execute drives run from IDLE to COMPLETED or ABORTED.
func (s *Segmenter) Execute(ctx context.Context, run *Run) (err error) {
	logger := s.logger.With(slog.String("run_id", run.ID))
	started := time.Now()

	defer func() {
		outcome := OutcomeCompleted
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = OutcomeCancelled
		default:
			outcome = OutcomeAborted
		}
		s.recorder.RunFinished(outcome)

		if err != nil {
			if aerr := run.Abort(err); aerr != nil {
				logger.Error("abort run", slog.String("error", aerr.Error()))
			}
			logger.Error("run aborted",
				slog.String("kind", Kind(err)),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(started)),
			)
			return
		}
		logger.Info("run completed",
			slog.Int("segments", len(run.Clone().Segments)),
			slog.Duration("elapsed", time.Since(started)),
		)
	}()

	if err := s.validate(); err != nil {
		return err
	}
	if err := run.TransitionTo(StateIndexing); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	logger.Info("run started", slog.String("input", run.Input), slog.String("output_dir", run.OutputDir))

	video, err := s.source.Open(ctx, run.Input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer func() {
		if cerr := video.Close(); cerr != nil {
			logger.Warn("close video", slog.String("error", cerr.Error()))
		}
	}()

	props := video.Properties()
	header := y4m.HeaderFromProperties(props)
	if err := header.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}

	entries, err := index.Build(ctx, video)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	stats := index.Summarize(entries)
	run.SetSource(props, stats)
	logger.Info("video indexed",
		slog.Int("width", props.Width),
		slog.Int("height", props.Height),
		slog.String("frame_rate", props.FrameRate.String()),
		slog.String("pixel_format", string(props.PixelFormat)),
		slog.Int("frames", stats.Total),
		slog.Int("corrupt_hints", stats.Corrupt),
	)

	if err := run.TransitionTo(StatePlanning); err != nil {
		return fmt.Errorf("plan run: %w", err)
	}
	plan, err := segment.Plan(len(entries), s.segmentLength)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	paths := make([]string, len(plan))
	for i, seg := range plan {
		paths[i] = s.storage.Path(segment.FileName(seg, len(plan)))
	}
	run.SetPlan(plan, paths)
	run.SetBudget(s.tolerance)

	if err := run.TransitionTo(StateSegmenting); err != nil {
		return fmt.Errorf("segment run: %w", err)
	}
	for i, seg := range plan {
		if err := s.writeSegment(ctx, logger, run, video, entries, header, i, len(plan), seg, paths[i]); err != nil {
			return err
		}
	}

	if err := run.TransitionTo(StateCompleted); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *Segmenter) validate() error {
	if s.segmentLength <= 0 {
		return fmt.Errorf("%w: %w", ErrConfig, segment.ErrInvalidTargetLength)
	}
	if s.tolerance < 0 {
		return fmt.Errorf("%w: negative error tolerance %d", ErrConfig, s.tolerance)
	}
	if _, err := ParseDecodePolicy(string(s.policy)); err != nil {
		return err
	}
	if s.storage == nil {
		return fmt.Errorf("%w: no output storage", ErrConfig)
	}
	return nil
}

// writeSegment streams the frames of seg into a new segment file. The writer
// is closed on every path; a file left behind by an abort ends at its last
// complete frame.
func (s *Segmenter) writeSegment(
	ctx context.Context,
	logger *slog.Logger,
	run *Run,
	video media.Video,
	entries []index.Entry,
	header y4m.Header,
	i, total int,
	seg segment.Segment,
	path string,
) error {
	started := time.Now()
	w, err := y4m.Create(path, header)
	if err != nil {
		return fmt.Errorf("%w: segment %d: %w", ErrWrite, seg.ID, err)
	}
	defer func() { _ = w.Close() }()
	run.StartSegment(i)
	logger.Debug("segment opened", slog.Int("segment", seg.ID), slog.String("path", path))

	err = s.copyFrames(ctx, logger, video, w, seg.Start, seg.End, frameHooks{
		corrupt: func(idx int) bool { return entries[idx].Decodable == media.HintCorrupt },
		failed: func(duplicate bool) (ErrorBudget, bool) {
			return run.DecodeFailed(i, !duplicate)
		},
		written: func(duplicate bool) { run.FrameWritten(i, duplicate) },
		processed: func(wrote bool) {
			done, frames := run.FrameDone()
			if !wrote {
				return
			}
			s.reporter.Report(progress.Event{
				RunID:       run.ID,
				Segment:     seg.ID,
				Segments:    total,
				FramesDone:  done,
				FramesTotal: frames,
			})
		},
	})
	if err != nil {
		return fmt.Errorf("segment %d: %w", seg.ID, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: segment %d: %w", ErrWrite, seg.ID, err)
	}
	location, err := s.storage.Publish(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("segment %d: %w", seg.ID, ctxErr)
		}
		return fmt.Errorf("%w: publish segment %d: %w", ErrWrite, seg.ID, err)
	}
	run.CloseSegment(i, location)
	s.recorder.SegmentWritten(time.Since(started))

	logger.Info("segment written",
		slog.Int("segment", seg.ID),
		slog.Int("frames", w.Frames()),
		slog.String("location", location),
	)
	return nil
}

// frameHooks connects copyFrames to the bookkeeping of its caller.
type frameHooks struct {
	// corrupt reports frames known to be undecodable without decoding them.
	corrupt func(idx int) bool
	// failed charges a decode failure and reports whether the budget is exceeded.
	failed func(duplicate bool) (ErrorBudget, bool)
	// written is called after each FRAME record.
	written func(duplicate bool)
	// processed is called once per source frame; wrote is false for an
	// omitted frame.
	processed func(wrote bool)
}

// copyFrames decodes frames [start, end) in order and writes them to w,
// applying the decode policy to tolerated failures.
func (s *Segmenter) copyFrames(
	ctx context.Context,
	logger *slog.Logger,
	video media.Video,
	w *y4m.Writer,
	start, end int,
	h frameHooks,
) error {
	// last holds a copy of the previous frame written to w.
	var last [][]byte

	write := func(idx int, planes [][]byte, duplicate bool) error {
		if err := w.WriteFrame(planes); err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrWrite, idx, err)
		}
		h.written(duplicate)
		s.recorder.FrameWritten()
		return nil
	}

	for idx := start; idx < end; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var frame *media.Frame
		var derr error
		if h.corrupt != nil && h.corrupt(idx) {
			derr = &media.DecodeError{Index: idx, Err: errors.New("indexed as corrupt")}
		} else {
			frame, derr = video.DecodeFrame(ctx, idx)
		}

		if derr != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !errors.Is(derr, media.ErrDecode) {
				if errors.Is(derr, media.ErrOutOfOrder) || errors.Is(derr, media.ErrFrameOutOfRange) ||
					errors.Is(derr, media.ErrClosed) {
					return derr
				}
				return fmt.Errorf("%w: %w", ErrOpen, derr)
			}

			duplicate := s.policy == PolicyDuplicate && last != nil
			s.recorder.DecodeError()
			budget, exceeded := h.failed(duplicate)
			if exceeded {
				return &BudgetExceededError{
					Consumed:  budget.Consumed,
					Tolerated: budget.Tolerated,
					Last:      fmt.Errorf("%w: %w", ErrDecode, derr),
				}
			}
			logger.Warn("decode error tolerated",
				slog.Int("frame", idx),
				slog.Int("consumed", budget.Consumed),
				slog.Int("tolerated", budget.Tolerated),
				slog.Bool("duplicated", duplicate),
				slog.String("error", derr.Error()),
			)
			if duplicate {
				if err := write(idx, last, true); err != nil {
					return err
				}
			}
			h.processed(duplicate)
			continue
		}

		if err := write(idx, frame.Planes, false); err != nil {
			return err
		}
		if s.policy == PolicyDuplicate {
			last = copyPlanes(last, frame.Planes)
		}
		h.processed(true)
	}
	return nil
}

// copyPlanes copies src into dst, reusing dst's buffers when they fit.
func copyPlanes(dst, src [][]byte) [][]byte {
	if len(dst) != len(src) {
		dst = make([][]byte, len(src))
	}
	for p := range src {
		if cap(dst[p]) < len(src[p]) {
			dst[p] = make([]byte, len(src[p]))
		}
		dst[p] = dst[p][:len(src[p])]
		copy(dst[p], src[p])
	}
	return dst
}
