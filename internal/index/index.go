// Package index builds the per-frame table the segmenter plans against.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/y4m-segmenter/internal/media"
)

// ErrEmpty is returned when the video reports no frames.
var ErrEmpty = errors.New("index: video has no frames")

// Entry describes one frame in decode order.
type Entry struct {
	Index     int
	Decodable media.Hint
}

// Stats summarises an index.
type Stats struct {
	Total     int
	Decodable int
	Corrupt   int
	Unknown   int
}

// Build materialises the frame table for video in a single pass. Hints come
// from the video when it implements media.HintProvider and reports exactly
// one hint per frame; otherwise every entry is media.HintUnknown and validity
// is discovered at decode time.
func Build(ctx context.Context, video media.Video) ([]Entry, error) {
	count := video.Properties().FrameCount
	if count <= 0 {
		return nil, ErrEmpty
	}

	var hints []media.Hint
	if hp, ok := video.(media.HintProvider); ok {
		h, err := hp.FrameHints(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("index: %w", ctx.Err())
			}
			// hints are optional, fall back to lazy discovery
			h = nil
		}
		if len(h) == count {
			hints = h
		}
	}

	entries := make([]Entry, count)
	for i := range entries {
		entries[i].Index = i
		if hints != nil {
			entries[i].Decodable = hints[i]
		}
	}
	return entries, nil
}

// Summarize counts entries by hint.
func Summarize(entries []Entry) Stats {
	s := Stats{Total: len(entries)}
	for _, e := range entries {
		switch e.Decodable {
		case media.HintDecodable:
			s.Decodable++
		case media.HintCorrupt:
			s.Corrupt++
		default:
			s.Unknown++
		}
	}
	return s
}
