// Package job provides the segmentation driver. A Run is the aggregate for one
// segmentation of one input file; it moves through a fixed state machine and
// records every segment it writes. The Segmenter executes runs and the
// Service manages them for the HTTP API.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/y4m-segmenter/internal/index"
	"github.com/maauso/y4m-segmenter/internal/job/id"
	"github.com/maauso/y4m-segmenter/internal/media"
	"github.com/maauso/y4m-segmenter/internal/segment"
)

// State represents the current state of a Run.
type State string

const (
	// StateIdle indicates the run has been created but not started.
	StateIdle State = "IDLE"
	// StateIndexing indicates the input is being opened and indexed.
	StateIndexing State = "INDEXING"
	// StatePlanning indicates segment boundaries are being computed.
	StatePlanning State = "PLANNING"
	// StateSegmenting indicates frames are being written to segment files.
	StateSegmenting State = "SEGMENTING"
	// StateCompleted indicates every planned segment was written.
	StateCompleted State = "COMPLETED"
	// StateAborted indicates the run stopped on a fatal error or cancellation.
	StateAborted State = "ABORTED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateIdle:       {StateIndexing, StateAborted},
	StateIndexing:   {StatePlanning, StateAborted},
	StatePlanning:   {StateSegmenting, StateAborted},
	StateSegmenting: {StateCompleted, StateAborted},
	StateCompleted:  {},
	StateAborted:    {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SegmentStatus represents the status of a single segment file.
type SegmentStatus string

const (
	// SegmentPending indicates the segment has not been opened yet.
	SegmentPending SegmentStatus = "PENDING"
	// SegmentWriting indicates the segment file is open.
	SegmentWriting SegmentStatus = "WRITING"
	// SegmentClosed indicates the segment file was closed and published.
	SegmentClosed SegmentStatus = "CLOSED"
	// SegmentAborted indicates the run stopped while the segment was open.
	SegmentAborted SegmentStatus = "ABORTED"
)

// SegmentRecord tracks one planned segment.
type SegmentRecord struct {
	ID    int
	Start int
	End   int
	// Path is the local file the segment is written to.
	Path string
	// Location is where the segment ended up after publication.
	Location string
	Status   SegmentStatus
	// Frames is the number of FRAME records written.
	Frames int
	// Omitted counts frames dropped after a decode failure.
	Omitted int
	// Duplicated counts decode failures filled with the previous frame.
	Duplicated int
}

// Run represents one segmentation of one input file.
type Run struct {
	mu sync.RWMutex

	ID        string
	Input     string
	OutputDir string
	State     State

	Properties media.Properties
	Index      index.Stats
	Segments   []SegmentRecord

	// FramesDone is the number of source frames processed, written or not.
	FramesDone int
	// FramesWritten is the number of FRAME records written across segments.
	FramesWritten int
	// FramesTotal is the indexed frame count.
	FramesTotal int

	Budget ErrorBudget
	Error  string
	err    error

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewRun creates a new Run with a generated ID in the IDLE state.
func NewRun(input, outputDir string) *Run {
	return NewRunWithID(id.Generate(), input, outputDir)
}

// NewRunWithID creates a new Run with the specified ID in the IDLE state.
func NewRunWithID(runID, input, outputDir string) *Run {
	now := time.Now()
	return &Run{
		ID:        runID,
		Input:     input,
		OutputDir: outputDir,
		State:     StateIdle,
		Segments:  make([]SegmentRecord, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the run state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *Run) TransitionTo(state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(state)
}

func (r *Run) transitionLocked(state State) error {
	if !canTransition(r.State, state) {
		return ErrInvalidTransition
	}

	r.State = state
	r.UpdatedAt = time.Now()

	switch state {
	case StateIndexing:
		r.StartedAt = r.UpdatedAt
	case StateCompleted, StateAborted:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Abort moves the run to ABORTED and records err. An open segment is marked
// aborted. Aborting a finished run returns ErrInvalidTransition.
func (r *Run) Abort(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if terr := r.transitionLocked(StateAborted); terr != nil {
		return terr
	}
	r.err = err
	if err != nil {
		r.Error = err.Error()
	}
	for i := range r.Segments {
		if r.Segments[i].Status == SegmentWriting {
			r.Segments[i].Status = SegmentAborted
		}
	}
	return nil
}

// Err returns the error that aborted the run, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// GetState returns the current state (thread-safe).
func (r *Run) GetState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.State
}

// IsTerminal returns true if the run is COMPLETED or ABORTED.
func (r *Run) IsTerminal() bool {
	s := r.GetState()
	return s == StateCompleted || s == StateAborted
}

// SetSource records the properties and index summary of the opened input.
func (r *Run) SetSource(props media.Properties, stats index.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Properties = props
	r.Index = stats
	r.FramesTotal = stats.Total
	r.UpdatedAt = time.Now()
}

// SetPlan creates one pending record per planned segment. paths[i] is the
// local file for plan[i].
func (r *Run) SetPlan(plan []segment.Segment, paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Segments = make([]SegmentRecord, len(plan))
	for i, seg := range plan {
		r.Segments[i] = SegmentRecord{
			ID:     seg.ID,
			Start:  seg.Start,
			End:    seg.End,
			Path:   paths[i],
			Status: SegmentPending,
		}
	}
	r.UpdatedAt = time.Now()
}

// SetBudget sets the tolerated number of decode failures.
func (r *Run) SetBudget(tolerated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Budget = ErrorBudget{Tolerated: tolerated}
}

// StartSegment marks segment i as open.
func (r *Run) StartSegment(i int) {
	r.updateSegment(i, func(s *SegmentRecord) { s.Status = SegmentWriting })
}

// CloseSegment marks segment i as closed and published at location.
func (r *Run) CloseSegment(i int, location string) {
	r.updateSegment(i, func(s *SegmentRecord) {
		s.Status = SegmentClosed
		s.Location = location
	})
}

// FrameWritten records a frame written to segment i. duplicate marks a
// frame that repeats the previous one in place of a failed decode.
func (r *Run) FrameWritten(i int, duplicate bool) {
	r.updateSegment(i, func(s *SegmentRecord) {
		s.Frames++
		if duplicate {
			s.Duplicated++
		}
	})
	r.mu.Lock()
	r.FramesWritten++
	r.mu.Unlock()
}

// FrameDone advances the processed frame counter and returns it with the
// total frame count.
func (r *Run) FrameDone() (done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FramesDone++
	return r.FramesDone, r.FramesTotal
}

// DecodeFailed charges one decode failure in segment i to the budget and
// reports whether the budget is now exceeded. omitted is false when the
// failure will be filled with a duplicate frame.
func (r *Run) DecodeFailed(i int, omitted bool) (ErrorBudget, bool) {
	if omitted {
		r.updateSegment(i, func(s *SegmentRecord) { s.Omitted++ })
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	exceeded := r.Budget.Consume()
	r.UpdatedAt = time.Now()
	return r.Budget, exceeded
}

func (r *Run) updateSegment(i int, fn func(*SegmentRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= 0 && i < len(r.Segments) {
		fn(&r.Segments[i])
		r.UpdatedAt = time.Now()
	}
}

// Clone creates a deep copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	segments := make([]SegmentRecord, len(r.Segments))
	copy(segments, r.Segments)

	return &Run{
		ID:            r.ID,
		Input:         r.Input,
		OutputDir:     r.OutputDir,
		State:         r.State,
		Properties:    r.Properties,
		Index:         r.Index,
		Segments:      segments,
		FramesDone:    r.FramesDone,
		FramesWritten: r.FramesWritten,
		FramesTotal:   r.FramesTotal,
		Budget:        r.Budget,
		Error:         r.Error,
		err:           r.err,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
}
