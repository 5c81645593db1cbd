package job

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/y4m-segmenter/internal/storage"
)

func newTestService(t *testing.T, src *fakeSource) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	seg, _ := newTestSegmenter(t, src, WithSegmentLength(10))
	factory := func(runID string) (storage.Storage, error) {
		return storage.NewLocalStorage(filepath.Join(root, runID))
	}
	svc := NewService(NewMemoryRepository(), seg, factory, quietLogger())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, root
}

func waitTerminal(t *testing.T, svc *Service, runID string) *Run {
	t.Helper()
	var run *Run
	require.Eventually(t, func() bool {
		r, err := svc.Get(context.Background(), runID)
		if err != nil {
			return false
		}
		run = r
		return r.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestService_Submit(t *testing.T) {
	svc, root := newTestService(t, &fakeSource{frames: 25})

	run, err := svc.Submit(context.Background(), SubmitInput{Input: "in.mkv", SegmentLength: 5, Tolerance: 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, run.ID), run.OutputDir)

	done := waitTerminal(t, svc, run.ID)
	assert.Equal(t, StateCompleted, done.State)
	assert.Len(t, done.Segments, 5)
	assert.Equal(t, 25, done.FramesWritten)
	assert.Equal(t, 1, done.Budget.Tolerated)
	assert.FileExists(t, filepath.Join(root, run.ID, "segment_0004.y4m"))
}

func TestService_Submit_DefaultsFromSegmenter(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{frames: 25})

	run, err := svc.Submit(context.Background(), SubmitInput{Input: "in.mkv"})
	require.NoError(t, err)

	done := waitTerminal(t, svc, run.ID)
	assert.Len(t, done.Segments, 2)
}

func TestService_Submit_RecordsAbort(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{frames: 20, bad: map[int]bool{1: true}})

	run, err := svc.Submit(context.Background(), SubmitInput{Input: "in.mkv"})
	require.NoError(t, err)

	done := waitTerminal(t, svc, run.ID)
	assert.Equal(t, StateAborted, done.State)
	assert.Contains(t, done.Error, "error budget exceeded")
}

func TestService_Submit_Invalid(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{frames: 20})

	tests := []struct {
		name string
		in   SubmitInput
	}{
		{"missing input", SubmitInput{}},
		{"negative tolerance", SubmitInput{Input: "in.mkv", Tolerance: -1}},
		{"unknown policy", SubmitInput{Input: "in.mkv", Policy: "repeat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	runs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_GetAndList(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{frames: 10})
	ctx := context.Background()

	a, err := svc.Submit(ctx, SubmitInput{Input: "a.mkv"})
	require.NoError(t, err)
	b, err := svc.Submit(ctx, SubmitInput{Input: "b.mkv"})
	require.NoError(t, err)
	waitTerminal(t, svc, a.ID)
	waitTerminal(t, svc, b.ID)

	runs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestService_Shutdown(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{frames: 10})

	require.NoError(t, svc.Shutdown(context.Background()))

	// Runs submitted after shutdown abort straight away.
	run, err := svc.Submit(context.Background(), SubmitInput{Input: "in.mkv"})
	require.NoError(t, err)
	done := waitTerminal(t, svc, run.ID)
	assert.Equal(t, StateAborted, done.State)
}
