// Package errors provides error handling for scanforge.
//
// It re-exports the subset of github.com/cockroachdb/errors the pipeline
// uses: error creation with stack traces, wrapping, user-facing hints, and
// sentinel marking. Hints carry the remediation text shown to operators on
// the process's error channel; details carry extra diagnostic context that
// ends up in telemetry, never on the console.
//
// Usage:
//
//	if err := store.Persist(cfg); err != nil {
//	    return errors.Wrap(err, "persisting pipeline configuration")
//	}
//
//	// Tag an error with a sentinel so the stage coordinator can classify it
//	return errors.Mark(errors.New("no languages to analyze"), pipeline.ErrUserError)
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping.
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing hints and diagnostic details.
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Inspection and classification.
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// GetReportableStackTrace extracts a stack trace suitable for inclusion in a
// structured status report.
var GetReportableStackTrace = crdb.GetReportableStackTrace
