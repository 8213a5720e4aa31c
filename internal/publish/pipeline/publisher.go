package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/metrics"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
	"slowclaw/internal/publish/record"
	"slowclaw/internal/publish/tracer"
)

// Minter derives a scoped upload token from a session.
type Minter interface {
	Mint(ctx context.Context, sess *models.Session, capability string) (*models.ScopedAuthToken, error)
}

// Uploader streams a video to the processing host.
type Uploader interface {
	Upload(ctx context.Context, token *models.ScopedAuthToken, did string, payload models.VideoPayload, report *progress.Reporter) (*models.UploadResult, error)
}

// JobWaiter waits for a transcoding job to yield a blob.
type JobWaiter interface {
	Wait(ctx context.Context, token *models.ScopedAuthToken, jobID string, report *progress.Reporter) (json.RawMessage, error)
}

// RecordPublisher creates the final post record.
type RecordPublisher interface {
	PublishText(ctx context.Context, sess *models.Session, text string, report *progress.Reporter) (*models.PublishResult, error)
	PublishVideo(ctx context.Context, sess *models.Session, rec record.VideoRecord, report *progress.Reporter) (*models.PublishResult, error)
}

// Dependencies are the collaborators shared by every task. Only Records is
// required for text posts; video posts also need Minter, Uploader and Poller.
type Dependencies struct {
	Minter   Minter
	Uploader Uploader
	Poller   JobWaiter
	Records  RecordPublisher

	Tracer  tracer.Tracer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Publisher creates publish tasks over a fixed set of collaborators.
type Publisher struct {
	deps Dependencies
}

// NewPublisher creates a publisher, filling defaults for optional
// dependencies.
func NewPublisher(deps Dependencies) *Publisher {
	if deps.Tracer == nil {
		deps.Tracer = tracer.NewNoop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Publisher{deps: deps}
}

// NewTextTask creates a text post task. The sink may be nil.
func (p *Publisher) NewTextTask(id string, sess *models.Session, text string, sink progress.Sink) *Task {
	t := newTask(id, ContentText, &p.deps, sess, sink)
	t.text = text
	return t
}

// NewVideoTask creates a video post task. The sink may be nil.
func (p *Publisher) NewVideoTask(id string, sess *models.Session, text string, payload models.VideoPayload, sink progress.Sink) *Task {
	t := newTask(id, ContentVideo, &p.deps, sess, sink)
	t.text = text
	t.video = payload
	return t
}

// PublishText runs a text post to completion.
func (p *Publisher) PublishText(ctx context.Context, sess *models.Session, text string, sink progress.Sink) (*models.PublishResult, error) {
	return p.NewTextTask("", sess, text, sink).Run(ctx)
}

// PublishVideo runs a video post to completion.
func (p *Publisher) PublishVideo(ctx context.Context, sess *models.Session, text string, payload models.VideoPayload, sink progress.Sink) (*models.PublishResult, error) {
	return p.NewVideoTask("", sess, text, payload, sink).Run(ctx)
}

// FailureView is the display form of a terminal failure.
type FailureView struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
	Status  int          `json:"status,omitempty"`
}

// Snapshot is a point-in-time view of a task.
type Snapshot struct {
	ID         string                `json:"id"`
	Kind       ContentKind           `json:"kind"`
	State      State                 `json:"state"`
	Percent    int                   `json:"percent"`
	JobID      string                `json:"jobId,omitempty"`
	Result     *models.PublishResult `json:"result,omitempty"`
	Error      *FailureView          `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	StartedAt  *time.Time            `json:"startedAt,omitempty"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Snapshot returns the current view of the task.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		ID:        t.id,
		Kind:      t.kind,
		State:     t.state,
		Percent:   t.report.Last(),
		JobID:     t.jobID,
		Result:    t.result,
		CreatedAt: t.createdAt,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		s.FinishedAt = &finished
	}
	if t.err != nil {
		view := &FailureView{
			Kind:    failure.KindOf(t.err),
			Message: failure.Message(t.err),
		}
		var fe *failure.Error
		if errors.As(t.err, &fe) {
			view.Status = fe.Status
		}
		s.Error = view
	}
	return s
}
