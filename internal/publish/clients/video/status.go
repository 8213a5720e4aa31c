package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/xrpc"
)

// StatusClient queries the transcoding tier for the state of one job.
type StatusClient struct {
	client *xrpc.Client
}

// NewStatusClient creates a job-status client for the video service at endpoint.
func NewStatusClient(endpoint string, opts ...xrpc.Option) *StatusClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = models.DefaultVideoEndpoint
	}
	return &StatusClient{client: xrpc.New(endpoint, opts...)}
}

// GetJobStatus fetches and normalises one status. Any non-2xx response is a
// fatal failure.KindProcessing; it is not treated as transient.
func (c *StatusClient) GetJobStatus(ctx context.Context, token *models.ScopedAuthToken, jobID string) (*models.JobStatus, error) {
	query := url.Values{}
	query.Set("jobId", jobID)

	resp, err := c.client.Do(ctx, xrpc.Request{
		Method: http.MethodGet,
		NSID:   models.NSIDGetJobStatus,
		Query:  query,
		Token:  tokenValue(token),
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindProcessing, "job status request failed", err)
	}
	if !resp.OK() {
		return nil, failure.WithStatus(failure.KindProcessing, resp.Status,
			"job status request failed: "+resp.ErrorMessage())
	}

	status, err := DecodeJobStatus(resp.Body)
	if err != nil {
		return nil, failure.Wrap(failure.KindProcessing, "malformed job status response", err)
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return status, nil
}

// jobStatusWire is the remote status object. The service sends it either at
// the top level or nested under "jobStatus".
type jobStatusWire struct {
	JobID    json.RawMessage `json:"jobId"`
	State    string          `json:"state"`
	Progress json.RawMessage `json:"progress"`
	Blob     json.RawMessage `json:"blob"`
	Error    json.RawMessage `json:"error"`
	Message  string          `json:"message"`
}

// DecodeJobStatus adapts either response shape into one canonical JobStatus.
// It is the only place that knows about the shape difference.
func DecodeJobStatus(body []byte) (*models.JobStatus, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}

	raw := json.RawMessage(body)
	if nested, ok := envelope["jobStatus"]; ok && len(nested) > 0 && nested[0] == '{' {
		raw = nested
	}

	var wire jobStatusWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	status := &models.JobStatus{
		JobID:    parseJobID(wire.JobID),
		RawState: wire.State,
		State:    NormalizeState(wire.State),
		Progress: parseProgress(wire.Progress),
		Error:    firstNonEmpty(parseErrorText(wire.Error), wire.Message),
	}
	if models.HasBlob(wire.Blob) {
		status.Blob = wire.Blob
	}

	// Some upload responses carry the blob next to a nested status.
	if !models.HasBlob(status.Blob) {
		if blob, ok := envelope["blob"]; ok && models.HasBlob(blob) {
			status.Blob = blob
		}
	}
	if status.JobID == "" {
		status.JobID = parseJobID(envelope["jobId"])
	}
	return status, nil
}

// parseJobID accepts a string or numeric job id.
func parseJobID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// NormalizeState maps the remote state vocabulary (e.g. "JOB_STATE_COMPLETED",
// "completed", "Failed") onto the canonical states, case-insensitively.
func NormalizeState(state string) models.JobState {
	s := strings.ToLower(strings.TrimSpace(state))
	switch {
	case s == "":
		return models.JobStateUnknown
	case strings.Contains(s, "completed"):
		return models.JobStateCompleted
	case strings.Contains(s, "failed"), strings.Contains(s, "error"):
		return models.JobStateFailed
	case strings.Contains(s, "queue"), strings.Contains(s, "pending"), strings.Contains(s, "created"):
		return models.JobStateQueued
	case strings.Contains(s, "process"), strings.Contains(s, "running"),
		strings.Contains(s, "encod"), strings.Contains(s, "progress"):
		return models.JobStateProcessing
	default:
		return models.JobStateUnknown
	}
}

func parseProgress(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64); err == nil {
			return &n
		}
	}
	return nil
}

func parseErrorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.Message, obj.Error)
	}
	return strings.TrimSpace(string(raw))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func tokenValue(token *models.ScopedAuthToken) string {
	if token == nil {
		return ""
	}
	return token.Token
}
