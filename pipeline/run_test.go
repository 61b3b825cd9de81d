package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/internal/health"
	"github.com/scanforge/scanforge/platform"
	"github.com/scanforge/scanforge/status"
)

type recordingSink struct {
	reports     []*status.Report
	startingErr error
	failAll     bool
}

func (s *recordingSink) SendStatusReport(_ context.Context, report any) error {
	r := report.(*status.Report)
	s.reports = append(s.reports, r)
	if s.failAll {
		return errors.New("sink unreachable")
	}
	if r.Status == status.StatusStarting && s.startingErr != nil {
		return s.startingErr
	}
	return nil
}

func setupRun(t *testing.T, sink *recordingSink) *status.Reporter {
	t.Helper()
	t.Setenv(config.EnvTempDir, t.TempDir())
	t.Setenv(health.EnvMinimumFreeMB, "1")
	return status.NewReporter(sink, zap.NewNop().Sugar())
}

func TestRunSuccess(t *testing.T) {
	sink := &recordingSink{}
	reporter := setupRun(t, sink)

	ran := false
	err := Run(context.Background(), StageAnalyze, reporter, zap.NewNop().Sugar(), func(ctx context.Context, stats *Stats) error {
		ran = true
		stats.Languages = []config.Language{config.LanguageGo, config.LanguageJava}
		stats.ResultsCount = 7
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	require.Len(t, sink.reports, 2)
	assert.Equal(t, status.StatusStarting, sink.reports[0].Status)
	terminal := sink.reports[1]
	assert.Equal(t, status.StatusSuccess, terminal.Status)
	assert.Equal(t, "go,java", terminal.Languages)
	assert.Equal(t, 7, terminal.ResultsCount)
	assert.Positive(t, terminal.DiskFreeMB, "measured free space is stamped onto the terminal report")
	assert.Empty(t, terminal.Cause)
}

func TestRunFailureClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus status.Status
	}{
		{"plain failure", errors.New("query suite has zero queries"), status.StatusFailure},
		{"user error", NewUserError("bad input combination"), status.StatusUserError},
		{"wrapped user error", errors.Wrap(UserErrorf("missing %s", "token"), "resolving inputs"), status.StatusUserError},
		{"aborted", errors.Mark(errors.New("invariant violated"), ErrAborted), status.StatusAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			reporter := setupRun(t, sink)

			err := Run(context.Background(), StageInit, reporter, zap.NewNop().Sugar(), func(ctx context.Context, stats *Stats) error {
				return tt.err
			})
			require.Error(t, err, "a non-success terminal state must exit non-zero")

			require.Len(t, sink.reports, 2)
			terminal := sink.reports[1]
			assert.Equal(t, tt.wantStatus, terminal.Status)
			assert.NotEmpty(t, terminal.Cause)
		})
	}
}

func TestRunDuplicateStartExitsSilently(t *testing.T) {
	sink := &recordingSink{startingErr: platform.ErrDuplicateStart}
	reporter := setupRun(t, sink)

	ran := false
	err := Run(context.Background(), StageAnalyze, reporter, zap.NewNop().Sugar(), func(ctx context.Context, stats *Stats) error {
		ran = true
		return nil
	})
	require.NoError(t, err, "duplicate start is a deliberate early return, not a failure")
	assert.False(t, ran, "no stage work after the duplicate signal")
	assert.Len(t, sink.reports, 1, "no terminal report after the duplicate signal")
}

func TestRunTelemetryNeverFailsStage(t *testing.T) {
	sink := &recordingSink{failAll: true}
	reporter := setupRun(t, sink)

	err := Run(context.Background(), StageUpload, reporter, zap.NewNop().Sugar(), func(ctx context.Context, stats *Stats) error {
		return nil
	})
	assert.NoError(t, err, "a stage that succeeds exits 0 even when every telemetry call fails")
}

func TestRunDiskCheckAborts(t *testing.T) {
	sink := &recordingSink{}
	t.Setenv(config.EnvTempDir, t.TempDir())
	t.Setenv(health.EnvMinimumFreeMB, "999999999")
	reporter := status.NewReporter(sink, zap.NewNop().Sugar())

	ran := false
	err := Run(context.Background(), StageAnalyze, reporter, zap.NewNop().Sugar(), func(ctx context.Context, stats *Stats) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, ran, "no language work after a failed health check")
	require.Len(t, sink.reports, 2)
	assert.Equal(t, status.StatusAborted, sink.reports[1].Status)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify(nil))
	assert.Equal(t, OutcomeFailure, Classify(errors.New("boom")))
	assert.Equal(t, OutcomeUserError, Classify(NewUserError("bad flag")))
	assert.Equal(t, OutcomeAborted, Classify(errors.Mark(errors.New("disk"), ErrAborted)))

	// Running a later stage before init is operator error.
	t.Setenv(config.EnvTempDir, t.TempDir())
	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, OutcomeUserError, Classify(err))
}
