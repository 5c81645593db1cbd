package job

import (
	"context"
	"errors"
	"fmt"
)

// Terminal error kinds. Every error that ends a run wraps exactly one of
// these, except cancellation which wraps the context error.
var (
	// ErrOpen reports an unreadable input or a missing video track.
	ErrOpen = errors.New("open error")
	// ErrConfig reports an invalid segment length, policy or output path.
	ErrConfig = errors.New("configuration error")
	// ErrDecode reports a frame that could not be decoded.
	ErrDecode = errors.New("decode error")
	// ErrWrite reports an output failure. It aborts regardless of the budget.
	ErrWrite = errors.New("write error")
	// ErrBudgetExceeded reports more decode errors than tolerated.
	ErrBudgetExceeded = errors.New("error budget exceeded")
)

// ErrorBudget counts decode failures against a tolerance.
type ErrorBudget struct {
	Tolerated int `json:"tolerated"`
	Consumed  int `json:"consumed"`
}

// Consume records one failure and reports whether the budget is now exceeded.
func (b *ErrorBudget) Consume() bool {
	b.Consumed++
	return b.Exceeded()
}

// Exceeded reports whether more failures were consumed than tolerated.
func (b ErrorBudget) Exceeded() bool {
	return b.Consumed > b.Tolerated
}

// BudgetExceededError ends a run once decode failures pass the tolerance.
type BudgetExceededError struct {
	Consumed  int
	Tolerated int
	// Last is the decode failure that exhausted the budget.
	Last error
}

func (e *BudgetExceededError) Error() string {
	msg := fmt.Sprintf("error budget exceeded: %d decode errors, %d tolerated", e.Consumed, e.Tolerated)
	if e.Last != nil {
		msg += " (last: " + e.Last.Error() + ")"
	}
	return msg
}

func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// Kind names the terminal error kind of err for user-facing messages.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrBudgetExceeded):
		return "budget exceeded"
	case errors.Is(err, ErrWrite):
		return "write error"
	case errors.Is(err, ErrOpen):
		return "open error"
	case errors.Is(err, ErrConfig):
		return "configuration error"
	case errors.Is(err, ErrDecode):
		return "decode error"
	default:
		return "internal error"
	}
}
