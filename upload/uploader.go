// Package upload pushes produced artifacts to the hosting platform and
// polls for their asynchronous server-side processing.
//
// Upload failures are classified into retryable (server errors, network)
// and non-retryable (client-side validation); only the former are retried,
// with bounded attempts and exponential backoff so the stage still respects
// the job's overall time budget. Processing is polled at a fixed interval
// within a conservative wall-clock budget: an artifact stuck in "pending"
// is reported as a soft failure rather than blocking the job indefinitely.
package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/pipeline"
	"github.com/scanforge/scanforge/platform"
)

// ProcessingStatus is the remote state of an uploaded artifact.
type ProcessingStatus string

const (
	ProcessingPending ProcessingStatus = "pending"
	ProcessingSuccess ProcessingStatus = "success"
	ProcessingFailed  ProcessingStatus = "failed"
)

// Result identifies a completed upload.
type Result struct {
	ArtifactID string
	Status     ProcessingStatus
}

// Metadata is stamped onto every uploaded artifact.
type Metadata struct {
	Repository        string
	Ref               string
	Commit            string
	ToolVersion       string
	JobRunID          string
	WorkflowStartedAt string
	Languages         []config.Language
}

// API is the slice of the platform client the uploader needs.
type API interface {
	UploadResults(ctx context.Context, payload *platform.ResultsPayload) (string, error)
	ProcessingStatus(ctx context.Context, artifactID string) (*platform.ProcessingResult, error)
	UploadTrapCache(ctx context.Context, payload *platform.TrapCachePayload) error
}

// Uploader pushes artifacts with retry and polls processing status.
type Uploader struct {
	client API
	log    *zap.SugaredLogger

	// Retry policy. Backoff doubles from BackoffBase per attempt, capped
	// at BackoffCap.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Poll policy.
	PollInterval time.Duration
	PollBudget   time.Duration

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUploader creates an Uploader with the default retry and poll policy.
func NewUploader(client API, log *zap.SugaredLogger) *Uploader {
	return &Uploader{
		client:       client,
		log:          log,
		MaxAttempts:  5,
		BackoffBase:  time.Second,
		BackoffCap:   64 * time.Second,
		PollInterval: 5 * time.Second,
		PollBudget:   2 * time.Minute,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Upload bundles the SARIF files under artifactDir and posts them with
// metadata, retrying retryable failures.
func (u *Uploader) Upload(ctx context.Context, artifactDir string, meta Metadata) (*Result, error) {
	encoded, count, err := bundleArtifacts(artifactDir)
	if err != nil {
		return nil, err
	}
	u.log.Infow("Uploading results", "files", count, "repository", meta.Repository)

	languages := make([]string, len(meta.Languages))
	for i, lang := range meta.Languages {
		languages[i] = string(lang)
	}
	payload := &platform.ResultsPayload{
		Repository:        meta.Repository,
		Ref:               meta.Ref,
		CommitSHA:         meta.Commit,
		JobRunID:          meta.JobRunID,
		WorkflowStartedAt: meta.WorkflowStartedAt,
		ToolVersion:       meta.ToolVersion,
		Languages:         languages,
		SARIF:             encoded,
	}

	id, err := u.withRetry(ctx, "results upload", func() (string, error) {
		return u.client.UploadResults(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	return &Result{ArtifactID: id, Status: ProcessingPending}, nil
}

// withRetry runs fn with the uploader's retry policy. Non-retryable
// failures surface immediately; a 4xx validation rejection is the
// operator's payload, so it classifies as a user error.
func (u *Uploader) withRetry(ctx context.Context, what string, fn func() (string, error)) (string, error) {
	backoff := u.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= u.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var httpErr *platform.HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return "", errors.Mark(errors.Wrapf(err, "%s rejected", what), pipeline.ErrUserError)
		}
		if attempt == u.MaxAttempts {
			break
		}

		u.log.Warnw("Retrying after transient failure",
			"operation", what,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if err := u.sleep(ctx, backoff); err != nil {
			return "", errors.Wrapf(err, "%s canceled", what)
		}
		if backoff *= 2; backoff > u.BackoffCap {
			backoff = u.BackoffCap
		}
	}
	return "", errors.Wrapf(lastErr, "%s failed after %d attempts", what, u.MaxAttempts)
}

// WaitForProcessing polls the artifact's processing status until it
// reaches a terminal state or the poll budget runs out. Exceeding the
// budget is a soft failure: reported, never an error, so a slow backend
// cannot starve the CI job's own timeout.
func (u *Uploader) WaitForProcessing(ctx context.Context, artifactID string) (ProcessingStatus, error) {
	deadline := time.Now().Add(u.PollBudget)
	for {
		res, err := u.client.ProcessingStatus(ctx, artifactID)
		if err != nil {
			// Transient poll failures don't consume the artifact's
			// chances; keep polling until the budget decides.
			u.log.Warnw("Processing status poll failed", "artifact_id", artifactID, "error", err)
		} else {
			switch ProcessingStatus(res.Status) {
			case ProcessingSuccess:
				return ProcessingSuccess, nil
			case ProcessingFailed:
				return ProcessingFailed, errors.Newf("artifact processing failed: %s", res.Errors)
			case ProcessingPending:
				// keep waiting
			default:
				u.log.Warnw("Unknown processing status", "artifact_id", artifactID, "status", res.Status)
			}
		}

		if time.Now().Add(u.PollInterval).After(deadline) {
			u.log.Warnw("Processing did not complete within budget, continuing without confirmation",
				"artifact_id", artifactID,
				"budget", u.PollBudget,
			)
			return ProcessingPending, nil
		}
		if err := u.sleep(ctx, u.PollInterval); err != nil {
			return ProcessingPending, errors.Wrap(err, "processing poll canceled")
		}
	}
}

// UploadTrapCaches pushes per-language trace caches. This is fire-and-
// forget with respect to the stage outcome: a failure here only degrades
// the bytes-uploaded telemetry field. Returns total bytes uploaded.
func (u *Uploader) UploadTrapCaches(ctx context.Context, jobRunID string, caches map[config.Language]config.TraceCacheDescriptor) int64 {
	var total int64
	for lang, desc := range caches {
		data, err := os.ReadFile(desc.Path)
		if err != nil {
			u.log.Warnw("Skipping unreadable trace cache", "language", lang, "path", desc.Path, "error", err)
			continue
		}
		encoded, err := gzipBase64(data)
		if err != nil {
			u.log.Warnw("Skipping trace cache that failed to compress", "language", lang, "error", err)
			continue
		}
		payload := &platform.TrapCachePayload{
			Language:  string(lang),
			JobRunID:  jobRunID,
			SizeBytes: int64(len(data)),
			Cache:     encoded,
		}
		_, err = u.withRetry(ctx, "trace cache upload", func() (string, error) {
			return "", u.client.UploadTrapCache(ctx, payload)
		})
		if err != nil {
			u.log.Warnw("Trace cache upload failed", "language", lang, "error", err)
			continue
		}
		total += int64(len(data))
	}
	return total
}

// bundleArtifacts reads every .sarif file under dir into one gzip-then-
// base64 encoded JSON bundle keyed by file name.
func bundleArtifacts(dir string) (encoded string, count int, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.sarif"))
	if err != nil {
		return "", 0, errors.Wrap(err, "listing artifacts")
	}
	if len(matches) == 0 {
		return "", 0, errors.Mark(
			errors.WithHintf(
				errors.Newf("no .sarif artifacts found in %s", dir),
				"Run 'scanforge analyze' before 'scanforge upload'.",
			),
			pipeline.ErrUserError,
		)
	}

	bundle := make(map[string]json.RawMessage, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", 0, errors.Wrapf(err, "reading artifact %s", path)
		}
		if !json.Valid(data) {
			return "", 0, errors.Newf("artifact %s is not valid JSON", path)
		}
		bundle[filepath.Base(path)] = json.RawMessage(data)
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, errors.Wrap(err, "bundling artifacts")
	}
	encoded, err = gzipBase64(raw)
	if err != nil {
		return "", 0, err
	}
	return encoded, len(matches), nil
}

func gzipBase64(data []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return "", errors.Wrap(err, "compressing payload")
	}
	if err := gz.Close(); err != nil {
		return "", errors.Wrap(err, "finalizing compressed payload")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
