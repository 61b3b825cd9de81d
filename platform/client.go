// Package platform implements the client for the hosting platform's
// pipeline endpoints: status-report ingestion, feature flags, result
// upload, and processing-status polling.
//
// The client performs single requests and classifies responses; retry and
// polling policy live with the callers (the upload package), which own the
// stage's time budget.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/internal/httpclient"
)

// ErrDuplicateStart is returned by SendStatusReport when the sink rejects a
// "starting" report as a duplicate for this job-run id. It is the one
// telemetry response treated as control flow: the stage must exit without
// doing work, because another invocation already claimed this job run.
var ErrDuplicateStart = errors.New("duplicate starting report for this job run")

// HTTPError carries the raw status and body of a non-2xx platform response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("platform responded %d: %s", e.StatusCode, body)
}

// Retryable reports whether the failure is worth retrying: server errors
// are transient, client errors are not.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500
}

// Client talks to the hosting platform.
type Client struct {
	baseURL string
	token   string
	http    *httpclient.SaferClient
	log     *zap.SugaredLogger
}

// NewClient creates a platform client with the hardened HTTP client.
func NewClient(baseURL, token string, log *zap.SugaredLogger) *Client {
	return NewClientWithHTTP(baseURL, token, httpclient.New(30*time.Second), log)
}

// NewClientWithHTTP creates a platform client over a caller-supplied HTTP
// client. Tests pass httpclient.WrapClient to reach httptest servers.
func NewClientWithHTTP(baseURL, token string, hc *httpclient.SaferClient, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
		log:     log,
	}
}

// SendStatusReport posts one status report to the telemetry sink. A 409
// response is the duplicate-start signal, surfaced as ErrDuplicateStart.
func (c *Client) SendStatusReport(ctx context.Context, report any) error {
	status, body, err := c.do(ctx, http.MethodPost, "/api/v1/status-reports", report)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusConflict:
		return ErrDuplicateStart
	case status < 200 || status >= 300:
		return &HTTPError{StatusCode: status, Body: body}
	}
	return nil
}

// FeatureFlags fetches the remote feature flag document.
func (c *Client) FeatureFlags(ctx context.Context) (map[string]bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/feature-flags", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &HTTPError{StatusCode: status, Body: body}
	}
	var flags map[string]bool
	if err := json.Unmarshal([]byte(body), &flags); err != nil {
		return nil, errors.Wrap(err, "parsing feature flag document")
	}
	return flags, nil
}

// ToolsInfo describes the engine bundle the platform currently recommends.
type ToolsInfo struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// DefaultTools fetches the platform's recommended engine bundle, used when
// the tools input is "linked" or "latest".
func (c *Client) DefaultTools(ctx context.Context) (*ToolsInfo, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/tools/default", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &HTTPError{StatusCode: status, Body: body}
	}
	var info ToolsInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		return nil, errors.Wrap(err, "parsing default tools response")
	}
	if info.URL == "" {
		return nil, errors.New("platform returned no default tools URL")
	}
	return &info, nil
}

// ResultsPayload is the artifact upload request body.
type ResultsPayload struct {
	Repository        string   `json:"repository"`
	Ref               string   `json:"ref"`
	CommitSHA         string   `json:"commit_sha"`
	JobRunID          string   `json:"job_run_id"`
	WorkflowStartedAt string   `json:"workflow_started_at,omitempty"`
	ToolVersion       string   `json:"tool_version"`
	Languages         []string `json:"languages"`

	// SARIF is the gzip-then-base64 encoded result bundle.
	SARIF string `json:"sarif"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

// UploadResults posts one artifact bundle and returns the opaque artifact
// id the platform assigned.
func (c *Client) UploadResults(ctx context.Context, payload *ResultsPayload) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/api/v1/results", payload)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &HTTPError{StatusCode: status, Body: body}
	}
	var resp uploadResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", errors.Wrap(err, "parsing upload response")
	}
	if resp.ID == "" {
		return "", errors.New("upload response missing artifact id")
	}
	return resp.ID, nil
}

// ProcessingResult is the asynchronous server-side state of an uploaded
// artifact, reachable only by polling.
type ProcessingResult struct {
	Status string `json:"status"` // pending | success | failed
	Errors string `json:"errors,omitempty"`
}

// ProcessingStatus fetches the processing state of an uploaded artifact.
func (c *Client) ProcessingStatus(ctx context.Context, artifactID string) (*ProcessingResult, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/results/"+artifactID, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &HTTPError{StatusCode: status, Body: body}
	}
	var resp ProcessingResult
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, errors.Wrap(err, "parsing processing status")
	}
	return &resp, nil
}

// TrapCachePayload uploads one language's dependency/trace cache.
type TrapCachePayload struct {
	Language  string `json:"language"`
	JobRunID  string `json:"job_run_id"`
	SizeBytes int64  `json:"size_bytes"`
	Cache     string `json:"cache"` // gzip-then-base64 encoded archive
}

// UploadTrapCache posts one TRAP cache archive.
func (c *Client) UploadTrapCache(ctx context.Context, payload *TrapCachePayload) error {
	status, body, err := c.do(ctx, http.MethodPost, "/api/v1/trap-caches", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &HTTPError{StatusCode: status, Body: body}
	}
	return nil
}

// do issues one request with auth headers and returns the status code and
// body. Transport-level failures come back as errors (retryable by
// convention); HTTP-level failures come back as a status code for the
// caller to classify.
func (c *Client) do(ctx context.Context, method, path string, payload any) (int, string, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, "", errors.Wrap(err, "marshaling request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, "", errors.Wrap(err, "building request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", errors.Wrap(err, "reading response body")
	}
	return resp.StatusCode, string(body), nil
}
