// Package status builds and delivers per-stage telemetry reports.
//
// Every stage invocation emits exactly one "starting" report at entry and
// at most one terminal report at exit. Delivery is best-effort: the sink
// being down never changes a stage's outcome. The single exception is the
// sink's duplicate-start rejection of a "starting" report, which is
// authoritative and makes the stage exit without doing work.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
)

// Status is a stage lifecycle status as reported to the telemetry sink.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusUserError Status = "user-error"
	StatusAborted   Status = "aborted"
)

// Report is one telemetry record. The schema is additive and sparse:
// optional fields are omitted when not yet known, and the sink tolerates
// reports with any subset of them.
type Report struct {
	ActionName  string `json:"action_name"`
	Status      Status `json:"status"`
	JobRunID    string `json:"job_run_id,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`

	// Populated on non-success only.
	Cause     string `json:"cause,omitempty"`
	Exception string `json:"exception,omitempty"`

	// Languages in init's resolution order, comma-joined. Downstream
	// aggregation keys off position as well as name, so the order must
	// match the order init persisted.
	Languages string `json:"languages,omitempty"`

	// Stage-specific metrics.
	DiskFreeMB              int64  `json:"disk_free_mb,omitempty"`
	WorkflowStartedAt       string `json:"workflow_started_at,omitempty"`
	ToolVersion             string `json:"tool_version,omitempty"`
	ToolsSource             string `json:"tools_source,omitempty"`
	ToolsDownloadDurationMS int64  `json:"tools_download_duration_ms,omitempty"`
	ToolsDownloadBytes      int64  `json:"tools_download_bytes,omitempty"`
	TrapCacheUploadBytes    int64  `json:"trap_cache_upload_bytes,omitempty"`
	ResultsCount            int    `json:"results_count,omitempty"`
	FailingLanguage         string `json:"failing_language,omitempty"`
}

// NewReport builds a report for one stage lifecycle event, stamping the
// job-run correlation id and workflow start time from the environment
// handoffs when present.
func NewReport(action string, st Status, startedAt time.Time) *Report {
	r := &Report{
		ActionName:        action,
		Status:            st,
		JobRunID:          config.JobRunID(),
		StartedAt:         startedAt.UTC().Format(time.RFC3339),
		WorkflowStartedAt: config.WorkflowStartedAt(),
	}
	if st != StatusStarting {
		now := time.Now().UTC()
		r.CompletedAt = now.Format(time.RFC3339)
		r.DurationMS = now.Sub(startedAt.UTC()).Milliseconds()
	}
	return r
}

// SetError fills the failure fields from err: the flattened message chain
// as the cause, and a reportable stack trace when one is attached.
func (r *Report) SetError(err error) {
	if err == nil {
		return
	}
	r.Cause = err.Error()
	if trace := errors.GetReportableStackTrace(err); trace != nil && len(trace.Frames) > 0 {
		// Keep the innermost frames; enough to locate the failure without
		// shipping the whole stack.
		frames := trace.Frames
		if len(frames) > 10 {
			frames = frames[len(frames)-10:]
		}
		var b strings.Builder
		for _, f := range frames {
			fmt.Fprintf(&b, "%s (%s:%d)\n", f.Function, f.AbsPath, f.Lineno)
		}
		r.Exception = b.String()
	}
}
