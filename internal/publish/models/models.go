package models

import (
	"encoding/json"
	"time"
)

// Credentials are supplied per login attempt and never persisted.
type Credentials struct {
	ServiceEndpoint string
	Identifier      string
	Password        string
}

// Session is an authenticated handle scoped to one identity. It is read-only
// once created and may be shared between concurrent publish calls.
type Session struct {
	AccessToken     string `json:"accessJwt"`
	RefreshToken    string `json:"refreshJwt,omitempty"`
	DID             string `json:"did"`
	Handle          string `json:"handle"`
	ServiceEndpoint string `json:"-"`
}

// ScopedAuthToken is a short-lived, audience-restricted credential for one
// remote capability. It is minted per upload and never cached.
type ScopedAuthToken struct {
	Token     string
	Audience  string
	ExpiresAt time.Time
}

// UploadResult holds exactly one of JobID or Blob.
type UploadResult struct {
	JobID string
	Blob  json.RawMessage
}

// HasBlob reports whether the upload resolved immediately to a blob reference.
func (r UploadResult) HasBlob() bool {
	return HasBlob(r.Blob)
}

// JobState is the canonical state of a remote transcoding job.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateUnknown    JobState = "unknown"
)

// JobStatus is one decoded poll response.
type JobStatus struct {
	JobID    string
	State    JobState
	RawState string
	// Progress is the remote value as sent: a fraction in [0,1] or a
	// percentage in [0,100]. Nil when the poll carried no number.
	Progress *float64
	Blob     json.RawMessage
	Error    string
}

// Stage names a point in the publish lifecycle reported to progress sinks.
type Stage string

const (
	StagePrepare    Stage = "prepare"
	StageUploaded   Stage = "uploaded"
	StageProcessing Stage = "processing"
	StageReady      Stage = "ready"
	StagePublishing Stage = "publishing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ProgressEvent is delivered to progress sinks; percent never decreases within
// one publish call.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// PublishResult is the success artifact of one publish call.
type PublishResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// VideoPayload describes a local video file to publish.
type VideoPayload struct {
	Path        string
	Name        string
	ContentType string
	AltText     string
}

// AspectRatio is the natural width and height of a video.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// HasBlob reports whether raw holds a usable blob reference.
func HasBlob(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "{}", `""`:
		return false
	}
	return true
}
