package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/internal/health"
	"github.com/scanforge/scanforge/logger"
	"github.com/scanforge/scanforge/status"
)

// Stats accumulates the metrics a stage reports in its terminal status
// report. Fields left at their zero value are omitted from the report.
type Stats struct {
	Languages               []config.Language
	DiskFreeMB              int64
	ToolVersion             string
	ToolsSource             string
	ToolsDownloadDurationMS int64
	ToolsDownloadBytes      int64
	TrapCacheUploadBytes    int64
	ResultsCount            int
	LanguageResults         []LanguageResult
}

// apply copies the accumulated metrics onto a terminal report.
func (s *Stats) apply(report *status.Report) {
	if len(s.Languages) > 0 {
		names := make([]string, len(s.Languages))
		for i, lang := range s.Languages {
			names[i] = string(lang)
		}
		report.Languages = strings.Join(names, ",")
	}
	report.DiskFreeMB = s.DiskFreeMB
	report.ToolVersion = s.ToolVersion
	report.ToolsSource = s.ToolsSource
	report.ToolsDownloadDurationMS = s.ToolsDownloadDurationMS
	report.ToolsDownloadBytes = s.ToolsDownloadBytes
	report.TrapCacheUploadBytes = s.TrapCacheUploadBytes
	report.ResultsCount = s.ResultsCount
	if failure := FirstFailure(s.LanguageResults); failure != nil {
		report.FailingLanguage = string(failure.Language)
	}
}

// StageFunc is one stage's body.
type StageFunc func(ctx context.Context, stats *Stats) error

// Run executes one stage invocation under the coordinator's state machine:
//
//	STARTING -> RUNNING -> {SUCCEEDED, FAILED, USER_ERROR, ABORTED}
//
// It emits the starting report (honoring the sink's duplicate-start
// signal), runs the pre-work health check, runs the stage body, classifies
// the terminal outcome, and emits exactly one terminal report. The
// returned error is nil exactly when the process should exit zero; report
// delivery failures never influence it.
func Run(ctx context.Context, stage Stage, reporter *status.Reporter, log *zap.SugaredLogger, fn StageFunc) error {
	startedAt := time.Now()
	log.Infow("Stage starting", "stage", stage)

	if proceed := reporter.SendStarting(ctx, status.NewReport(string(stage), status.StatusStarting, startedAt)); !proceed {
		// Someone else already ran this stage for this job run. A
		// deliberate silent exit, not a failure.
		log.Infow("Stage already started by another invocation, exiting", "stage", stage)
		return nil
	}

	stats := &Stats{}
	err := runChecked(ctx, stage, log, stats, fn)
	outcome := Classify(err)

	report := status.NewReport(string(stage), outcome.Status(), startedAt)
	stats.apply(report)
	if err != nil {
		report.SetError(err)
	}
	// Flush the terminal report before the process exits; its delivery
	// outcome feeds metrics only.
	if delivery := reporter.Send(ctx, report); !delivery.Sent {
		log.Debugw("Terminal report suppressed", "stage", stage, "reason", delivery.Reason)
	}
	logger.Cleanup()

	if err != nil {
		// One human-readable message on stderr; hints carry remediation.
		fields := []interface{}{"stage", stage, "outcome", outcome, "error", err}
		if hints := errors.FlattenHints(err); hints != "" {
			fields = append(fields, "hint", hints)
		}
		log.Errorw("Stage failed", fields...)
		return err
	}

	log.Infow("Stage succeeded", "stage", stage, "duration_ms", time.Since(startedAt).Milliseconds())
	return nil
}

// runChecked runs the pre-work health check, then the stage body. Health
// check failures abort: no analysis was attempted, which is a different
// operational condition than an analysis failing.
func runChecked(ctx context.Context, stage Stage, log *zap.SugaredLogger, stats *Stats, fn StageFunc) error {
	freeMB, err := health.CheckDiskSpace(config.TempDir(), log)
	stats.DiskFreeMB = freeMB
	if err != nil {
		return errors.Mark(err, ErrAborted)
	}
	return fn(ctx, stats)
}
