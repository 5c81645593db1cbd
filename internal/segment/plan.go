// Package segment computes frame-range segment plans and segment file names.
package segment

import (
	"errors"
	"fmt"
)

// Static errors for plan validation.
var (
	// ErrInvalidFrameCount is returned when the frame count is not positive.
	ErrInvalidFrameCount = errors.New("segment: frame count must be positive")
	// ErrInvalidTargetLength is returned when the target length is not positive.
	ErrInvalidTargetLength = errors.New("segment: target length must be positive")
)

// minNameDigits is the minimum zero padding of segment file names.
const minNameDigits = 4

// Segment is the half-open frame range [Start, End).
type Segment struct {
	ID    int
	Start int
	End   int
}

// Len returns the number of frames in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// String implements fmt.Stringer.
func (s Segment) String() string {
	return fmt.Sprintf("#%d[%d,%d)", s.ID, s.Start, s.End)
}

// Plan partitions [0, frameCount) into segments of targetLength frames.
// A remainder is merged into the last segment instead of becoming a short
// trailing segment, so every segment has at least targetLength frames unless
// the whole video is shorter than that.
func Plan(frameCount, targetLength int) ([]Segment, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameCount, frameCount)
	}
	if targetLength <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTargetLength, targetLength)
	}

	full := frameCount / targetLength
	if full == 0 {
		return []Segment{{ID: 0, Start: 0, End: frameCount}}, nil
	}

	plan := make([]Segment, full)
	for i := range plan {
		plan[i] = Segment{ID: i, Start: i * targetLength, End: (i + 1) * targetLength}
	}
	plan[full-1].End = frameCount
	return plan, nil
}

// FileName returns the deterministic output name of seg within a plan of
// total segments, e.g. "segment_0003.y4m".
func FileName(seg Segment, total int) string {
	digits := len(fmt.Sprint(total - 1))
	if digits < minNameDigits {
		digits = minNameDigits
	}
	return fmt.Sprintf("segment_%0*d.y4m", digits, seg.ID)
}

// RangeFileName returns the output name used for an explicit frame range.
func RangeFileName(start, end int) string {
	return fmt.Sprintf("%d-%d.y4m", start, end)
}
