package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/y4m-segmenter/internal/job/id"
	"github.com/maauso/y4m-segmenter/internal/storage"
)

// SubmitInput contains the parameters of a run submitted through the API.
type SubmitInput struct {
	// Input is the path of the video to segment.
	Input string
	// SegmentLength overrides the segmenter's target length when positive.
	SegmentLength int
	// Tolerance is the number of decode failures the run tolerates.
	Tolerance int
	// Policy overrides the decode policy when set.
	Policy DecodePolicy
}

// StorageFactory returns the output storage for a new run.
type StorageFactory func(runID string) (storage.Storage, error)

// Service runs segmentations in the background and keeps their records.
// Runs in progress are served live; finished runs come from the repository.
type Service struct {
	repo       Repository
	segmenter  *Segmenter
	newStorage StorageFactory
	logger     *slog.Logger

	mu     sync.RWMutex
	active map[string]*Run
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new Service. Runs inherit every option of segmenter
// and write to the storage newStorage returns for them.
func NewService(repo Repository, segmenter *Segmenter, newStorage StorageFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:       repo,
		segmenter:  segmenter,
		newStorage: newStorage,
		logger:     logger,
		active:     make(map[string]*Run),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit creates a run and starts it in the background. The run outlives
// ctx; it stops only when the Service shuts down.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Run, error) {
	if in.Input == "" {
		return nil, fmt.Errorf("%w: input is required", ErrConfig)
	}
	if in.Tolerance < 0 {
		return nil, fmt.Errorf("%w: negative error tolerance %d", ErrConfig, in.Tolerance)
	}
	opts := []Option{WithTolerance(in.Tolerance)}
	if in.SegmentLength > 0 {
		opts = append(opts, WithSegmentLength(in.SegmentLength))
	}
	if in.Policy != "" {
		p, err := ParseDecodePolicy(string(in.Policy))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDecodePolicy(p))
	}

	runID := id.Generate()
	st, err := s.newStorage(runID)
	if err != nil {
		return nil, fmt.Errorf("%w: output storage: %w", ErrConfig, err)
	}
	opts = append(opts, WithStorage(st))
	run := NewRunWithID(runID, in.Input, st.Dir())

	s.logger.Info("submitting run",
		slog.String("run_id", run.ID),
		slog.String("input", in.Input),
		slog.Int("segment_length", in.SegmentLength),
		slog.Int("tolerance", in.Tolerance),
	)

	if err := s.repo.Save(ctx, run); err != nil {
		s.logger.Error("failed to save run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.mu.Lock()
	s.active[run.ID] = run
	s.mu.Unlock()

	seg := s.segmenter.With(opts...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = seg.Execute(s.ctx, run)

		if err := s.repo.Save(context.Background(), run); err != nil {
			s.logger.Error("failed to save finished run",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
		s.mu.Lock()
		delete(s.active, run.ID)
		s.mu.Unlock()
	}()

	return run.Clone(), nil
}

// Get retrieves a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	run, ok := s.active[runID]
	s.mu.RUnlock()
	if ok {
		return run.Clone(), nil
	}
	return s.repo.FindByID(ctx, runID)
}

// List returns every run, oldest first.
func (s *Service) List(ctx context.Context) ([]*Run, error) {
	runs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, r := range runs {
		if live, ok := s.active[r.ID]; ok {
			runs[i] = live.Clone()
		}
	}
	return runs, nil
}

// Shutdown cancels runs in progress and waits for them to record their
// outcome, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}
