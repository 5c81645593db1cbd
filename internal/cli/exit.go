package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/maauso/y4m-segmenter/internal/config"
	"github.com/maauso/y4m-segmenter/internal/job"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitConfig    = 2
	ExitOpen      = 3
	ExitBudget    = 4
	ExitWrite     = 5
	ExitCancelled = 130
)

// ExitCode maps the error returned by Run to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.Is(err, job.ErrBudgetExceeded):
		return ExitBudget
	case errors.Is(err, job.ErrWrite):
		return ExitWrite
	case errors.Is(err, job.ErrOpen):
		return ExitOpen
	case errors.Is(err, job.ErrConfig), errors.Is(err, config.ErrInvalid), errors.Is(err, ErrUsage):
		return ExitConfig
	default:
		return ExitError
	}
}

// Describe formats err for the user, naming its kind. Budget overruns also
// report consumed/tolerated.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var budget *job.BudgetExceededError
	if errors.As(err, &budget) {
		return fmt.Sprintf("error budget exceeded (%d/%d decode errors): %v", budget.Consumed, budget.Tolerated, err)
	}
	switch {
	case errors.Is(err, ErrUsage), errors.Is(err, config.ErrInvalid):
		return err.Error()
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return fmt.Sprintf("%s: %v", job.Kind(err), err)
}
