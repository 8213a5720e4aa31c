package handler

import (
	"strings"

	"slowclaw/internal/publish/facade"
	"slowclaw/internal/publish/models"
	dErrors "slowclaw/pkg/domain-errors"
)

// PublishTextRequest is the body of POST /v1/publish/text.
type PublishTextRequest struct {
	Text string `json:"text"`
}

// Normalize trims surrounding whitespace.
func (r *PublishTextRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
}

// Validate rejects an empty post.
func (r *PublishTextRequest) Validate() error {
	if r.Text == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "text is required")
	}
	return nil
}

// PublishVideoRequest is the body of POST /v1/publish/video.
type PublishVideoRequest struct {
	Text        string `json:"text"`
	Path        string `json:"path"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	AltText     string `json:"altText,omitempty"`
}

// Normalize trims fields. Text keeps inner whitespace.
func (r *PublishVideoRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
	r.Path = strings.TrimSpace(r.Path)
	r.Name = strings.TrimSpace(r.Name)
	r.ContentType = strings.TrimSpace(r.ContentType)
	r.AltText = strings.TrimSpace(r.AltText)
}

// Validate requires a path. File checks happen when the task runs.
func (r *PublishVideoRequest) Validate() error {
	if r.Path == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "path is required")
	}
	if r.ContentType != "" && !strings.HasPrefix(r.ContentType, "video/") {
		return dErrors.New(dErrors.CodeInvalidInput, "contentType must be a video type")
	}
	return nil
}

// Payload converts the request into a pipeline payload.
func (r *PublishVideoRequest) Payload() models.VideoPayload {
	return models.VideoPayload{
		Path:        r.Path,
		Name:        r.Name,
		ContentType: r.ContentType,
		AltText:     r.AltText,
	}
}

// XRPCRequest is the body of POST /v1/xrpc.
type XRPCRequest struct {
	Method  string            `json:"method"`
	Target  string            `json:"target"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Normalize upper-cases the method and defaults it to GET.
func (r *XRPCRequest) Normalize() {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = "GET"
	}
	r.Target = strings.TrimSpace(r.Target)
}

// Validate requires a target.
func (r *XRPCRequest) Validate() error {
	if r.Target == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "target is required")
	}
	return nil
}

func (r *XRPCRequest) toFacade() facade.Request {
	return facade.Request{
		Method:  r.Method,
		Target:  r.Target,
		Headers: r.Headers,
		Body:    r.Body,
	}
}

// CancelResponse acknowledges a cancel request.
type CancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// EventsResponse is the plain HTTP fallback of the events endpoint.
type EventsResponse struct {
	ID     string                 `json:"id"`
	Events []models.ProgressEvent `json:"events"`
}
