// Package server provides the HTTP API for submitting and inspecting
// segmentation runs. It includes handlers, middleware, routes, and DTOs
// separated from domain types.
package server

import (
	"time"

	"github.com/maauso/y4m-segmenter/internal/job"
)

// CreateRunRequest is the HTTP request body for starting a new run.
type CreateRunRequest struct {
	// Input is the path of the video to segment, as seen by the server.
	Input string `json:"input" validate:"required"`
	// SegmentLength is the target segment length in frames. Zero keeps the server default.
	SegmentLength int `json:"segment_length" validate:"omitempty,min=1"`
	// IgnoreErrors is the number of decode failures the run tolerates.
	IgnoreErrors int `json:"ignore_errors" validate:"min=0"`
	// OnDecodeError is "omit" or "duplicate". Empty keeps the server default.
	OnDecodeError string `json:"on_decode_error" validate:"omitempty,oneof=omit duplicate"`
}

// CreateRunResponse is the HTTP response after creating a run.
type CreateRunResponse struct {
	// ID is the unique identifier for the created run.
	ID string `json:"id"`
	// State is the initial run state.
	State string `json:"state"`
}

// BudgetResponse mirrors the run's error budget.
type BudgetResponse struct {
	Tolerated int `json:"tolerated"`
	Consumed  int `json:"consumed"`
}

// SegmentResponse describes one planned segment.
type SegmentResponse struct {
	ID         int    `json:"id"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Status     string `json:"status"`
	Frames     int    `json:"frames"`
	Omitted    int    `json:"omitted,omitempty"`
	Duplicated int    `json:"duplicated,omitempty"`
	// Location is the local path or URL of a closed segment.
	Location string `json:"location,omitempty"`
}

// RunResponse is the HTTP response for getting run details.
type RunResponse struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	Input         string            `json:"input"`
	OutputDir     string            `json:"output_dir"`
	Progress      int               `json:"progress"`
	FramesDone    int               `json:"frames_done"`
	FramesTotal   int               `json:"frames_total"`
	FramesWritten int               `json:"frames_written"`
	Budget        BudgetResponse    `json:"budget"`
	Segments      []SegmentResponse `json:"segments"`
	Error         string            `json:"error,omitempty"`
	ErrorKind     string            `json:"error_kind,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// ListRunsResponse is the HTTP response for listing runs.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// newRunResponse converts a run snapshot into its DTO.
func newRunResponse(r *job.Run) RunResponse {
	resp := RunResponse{
		ID:            r.ID,
		State:         string(r.State),
		Input:         r.Input,
		OutputDir:     r.OutputDir,
		FramesDone:    r.FramesDone,
		FramesTotal:   r.FramesTotal,
		FramesWritten: r.FramesWritten,
		Budget:        BudgetResponse{Tolerated: r.Budget.Tolerated, Consumed: r.Budget.Consumed},
		Segments:      make([]SegmentResponse, 0, len(r.Segments)),
		Error:         r.Error,
		ErrorKind:     job.Kind(r.Err()),
		CreatedAt:     r.CreatedAt,
	}
	if r.FramesTotal > 0 {
		resp.Progress = r.FramesDone * 100 / r.FramesTotal
	}
	if !r.CompletedAt.IsZero() {
		t := r.CompletedAt
		resp.CompletedAt = &t
	}
	for _, s := range r.Segments {
		resp.Segments = append(resp.Segments, SegmentResponse{
			ID:         s.ID,
			Start:      s.Start,
			End:        s.End,
			Status:     string(s.Status),
			Frames:     s.Frames,
			Omitted:    s.Omitted,
			Duplicated: s.Duplicated,
			Location:   s.Location,
		})
	}
	return resp
}
