package status

import (
	"context"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/platform"
)

// Sink delivers one report to the telemetry endpoint.
type Sink interface {
	SendStatusReport(ctx context.Context, report any) error
}

// DeliveryOutcome records what happened to one report. It feeds metrics
// only: no control flow may depend on it, which is what keeps telemetry
// from ever failing a stage.
type DeliveryOutcome struct {
	Sent   bool
	Reason string // suppression reason when Sent is false
}

// Sent is the successful delivery outcome.
func Sent() DeliveryOutcome { return DeliveryOutcome{Sent: true} }

// Suppressed records a swallowed delivery failure.
func Suppressed(reason string) DeliveryOutcome { return DeliveryOutcome{Reason: reason} }

// Reporter delivers reports best-effort.
type Reporter struct {
	sink Sink
	log  *zap.SugaredLogger
}

// NewReporter creates a Reporter. A nil sink suppresses all delivery (used
// when no platform endpoint is configured).
func NewReporter(sink Sink, log *zap.SugaredLogger) *Reporter {
	return &Reporter{sink: sink, log: log}
}

// Send delivers a report, swallowing every failure after logging it.
func (r *Reporter) Send(ctx context.Context, report *Report) DeliveryOutcome {
	if r.sink == nil {
		return Suppressed("no telemetry sink configured")
	}
	if err := r.sink.SendStatusReport(ctx, report); err != nil {
		r.log.Warnw("Failed to deliver status report",
			"action", report.ActionName,
			"status", report.Status,
			"error", err,
		)
		return Suppressed(err.Error())
	}
	return Sent()
}

// SendStarting delivers the stage's "starting" report and returns whether
// the stage should proceed. Only the sink's explicit duplicate-start
// rejection stops the stage; any other delivery failure is swallowed and
// the stage proceeds.
func (r *Reporter) SendStarting(ctx context.Context, report *Report) (proceed bool) {
	if r.sink == nil {
		return true
	}
	err := r.sink.SendStatusReport(ctx, report)
	if err == nil {
		return true
	}
	if errors.Is(err, platform.ErrDuplicateStart) {
		r.log.Warnw("Telemetry sink reports a duplicate start for this job run; exiting without doing work",
			"action", report.ActionName,
			"job_run_id", report.JobRunID,
		)
		return false
	}
	r.log.Warnw("Failed to deliver starting report",
		"action", report.ActionName,
		"error", err,
	)
	return true
}
