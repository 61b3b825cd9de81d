// Package pipeline implements the stage coordinator: the wrapper every
// stage entry point runs inside, the outcome classification for its
// terminal state, and the per-language fan-out used by the analyze stage.
package pipeline

import (
	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/status"
)

// Stage identifies one independently invoked unit of the pipeline.
type Stage string

const (
	StageInit      Stage = "init"
	StageAutobuild Stage = "autobuild"
	StageAnalyze   Stage = "analyze"
	StageUpload    Stage = "upload"
)

// Outcome is the terminal state of one stage invocation.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeUserError Outcome = "user-error"
	OutcomeAborted   Outcome = "aborted"
)

// Sentinel markers for the error taxonomy. Errors are tagged with
// errors.Mark so classification survives arbitrary wrapping.
var (
	// ErrUserError marks misconfiguration clearly caused by the caller's
	// setup: bad input combinations, missing prerequisite stages. Reported
	// with the same severity as a failure but tagged separately in
	// telemetry.
	ErrUserError = errors.New("user error")

	// ErrAborted marks failures of pre-work health checks and internal
	// invariants: the stage stopped before attempting any analysis.
	ErrAborted = errors.New("stage aborted")
)

// NewUserError creates an operator-actionable error.
func NewUserError(msg string) error {
	return errors.Mark(errors.New(msg), ErrUserError)
}

// UserErrorf creates a formatted operator-actionable error.
func UserErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUserError)
}

// Classify maps an error surfaced from a stage body to its terminal
// outcome. A missing configuration snapshot is always the operator running
// stages out of order, so it classifies as a user error.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrUserError), errors.Is(err, config.ErrNotInitialized):
		return OutcomeUserError
	case errors.Is(err, ErrAborted):
		return OutcomeAborted
	default:
		return OutcomeFailure
	}
}

// Status maps an outcome to its telemetry status.
func (o Outcome) Status() status.Status {
	switch o {
	case OutcomeSuccess:
		return status.StatusSuccess
	case OutcomeUserError:
		return status.StatusUserError
	case OutcomeAborted:
		return status.StatusAborted
	default:
		return status.StatusFailure
	}
}
