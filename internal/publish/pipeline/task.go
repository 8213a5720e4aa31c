// Package pipeline drives one publish call as a resumable task.
//
// A Task is a step function over the publish states. Each Step moves exactly
// one state forward: uploading mints a scoped token and then uploads, polling
// waits for the whole transcoding job, publishing creates the record. Every
// Step checks the caller's context first, and the clients underneath observe
// it on every request and poll sleep, so an abandoned call stops promptly
// instead of running to its poll deadline. Run loops Step until the task
// reaches done or failed.
//
// Video:  prepare -> uploading -> {blob_ready | polling} -> ready -> publishing -> done
// Text:   prepare -> publishing -> done
//
// failed is absorbing and reachable from every non-terminal state.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
	"slowclaw/internal/publish/record"
	"slowclaw/internal/publish/tracer"
)

// ErrTaskFinished is returned by Step once the task has a terminal outcome.
var ErrTaskFinished = errors.New("publish task already finished")

// State is a point in the publish state machine.
type State string

const (
	StatePrepare    State = "prepare"
	StateUploading  State = "uploading"
	StateBlobReady  State = "blob_ready"
	StatePolling    State = "polling"
	StateReady      State = "ready"
	StatePublishing State = "publishing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further steps are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ContentKind distinguishes text posts from video posts.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentVideo ContentKind = "video"
)

// Task is one publish call. Step must not be called concurrently with itself;
// Snapshot, Done and Outcome are safe from any goroutine.
type Task struct {
	id      string
	kind    ContentKind
	session *models.Session
	text    string
	video   models.VideoPayload
	deps    *Dependencies
	report  *progress.Reporter

	stepMu sync.Mutex

	spanMu sync.Mutex
	span   tracer.Span

	mu         sync.RWMutex
	state      State
	size       int64
	token      *models.ScopedAuthToken
	jobID      string
	blob       json.RawMessage
	result     *models.PublishResult
	err        error
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	once sync.Once
	done chan struct{}
}

func newTask(id string, kind ContentKind, deps *Dependencies, sess *models.Session, sink progress.Sink) *Task {
	t := &Task{
		id:        id,
		kind:      kind,
		session:   sess,
		deps:      deps,
		state:     StatePrepare,
		createdAt: deps.Now(),
		done:      make(chan struct{}),
	}
	t.report = progress.NewReporter(progress.Fanout(sink, t.recordEvent))
	return t
}

// recordEvent adds a delivered progress event to the running publish span.
func (t *Task) recordEvent(ev models.ProgressEvent) {
	t.spanMu.Lock()
	defer t.spanMu.Unlock()
	if t.span == nil {
		return
	}
	t.span.AddEvent(tracer.EventProgress,
		tracer.String(tracer.AttrStage, string(ev.Stage)),
		tracer.Int(tracer.AttrPercent, ev.Percent),
	)
}

func (t *Task) setSpan(span tracer.Span) {
	t.spanMu.Lock()
	defer t.spanMu.Unlock()
	t.span = span
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Kind returns the content kind.
func (t *Task) Kind() ContentKind { return t.kind }

// State returns the current state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Done is closed once the terminal outcome is recorded.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the terminal result or failure. Before the task finishes
// both are nil.
func (t *Task) Outcome() (*models.PublishResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.err
}

// Run steps the task until it is terminal and returns its outcome. Calling
// Run on a finished task returns the recorded outcome without side effects.
func (t *Task) Run(ctx context.Context) (*models.PublishResult, error) {
	if t.State().Terminal() {
		return t.Outcome()
	}

	ctx, span := t.deps.Tracer.Start(ctx, tracer.SpanPublish,
		tracer.String(tracer.AttrTaskID, t.id),
		tracer.String(tracer.AttrKind, string(t.kind)),
		tracer.String(tracer.AttrDID, t.did()),
	)
	t.setSpan(span)
	for {
		state, err := t.Step(ctx)
		if errors.Is(err, ErrTaskFinished) || state.Terminal() {
			break
		}
	}

	result, err := t.Outcome()
	if result != nil {
		span.SetAttributes(tracer.String(tracer.AttrRecordURI, result.URI))
	}
	t.setSpan(nil)
	span.End(err)
	return result, err
}

// Step advances the task by exactly one state and returns the new state. When
// the step fails the task moves to failed and the failure is returned.
func (t *Task) Step(ctx context.Context) (State, error) {
	t.stepMu.Lock()
	defer t.stepMu.Unlock()

	current := t.State()
	if current.Terminal() {
		return current, ErrTaskFinished
	}
	t.markStarted()

	if err := failure.FromContext(ctx); err != nil {
		return t.fail(ctx, current, err)
	}

	began := t.deps.Now()
	next, err := t.advance(ctx, current)
	t.deps.Metrics.ObserveStage(string(current), t.deps.Now().Sub(began).Seconds())
	if err != nil {
		return t.fail(ctx, current, err)
	}

	if next == StateDone {
		t.finish(ctx)
		return next, nil
	}

	t.mu.Lock()
	t.state = next
	t.mu.Unlock()

	t.deps.Logger.DebugContext(ctx, "publish step",
		"task_id", t.id,
		"from", string(current),
		"to", string(next),
	)
	return next, nil
}

func (t *Task) advance(ctx context.Context, state State) (State, error) {
	switch state {
	case StatePrepare:
		return t.prepare()
	case StateUploading:
		return t.upload(ctx)
	case StateBlobReady:
		t.report.Report(models.StageReady, models.PercentReady, "Video ready")
		return StateReady, nil
	case StatePolling:
		return t.poll(ctx)
	case StateReady:
		return StatePublishing, nil
	case StatePublishing:
		return t.publish(ctx)
	default:
		return StateFailed, fmt.Errorf("unexpected state %q", state)
	}
}

func (t *Task) prepare() (State, error) {
	if t.session == nil || t.session.AccessToken == "" || t.session.DID == "" {
		return StateFailed, failure.New(failure.KindAuth, "no active session")
	}

	if t.kind == ContentText {
		if strings.TrimSpace(t.text) == "" {
			return StateFailed, failure.New(failure.KindInvalidInput, "post text is empty")
		}
		t.report.Report(models.StagePrepare, models.PercentPrepare, "Preparing post")
		return StatePublishing, nil
	}

	if t.deps.Minter == nil || t.deps.Uploader == nil || t.deps.Poller == nil {
		return StateFailed, failure.New(failure.KindUpload, "video publishing is not configured")
	}
	size, err := validateVideo(t.video)
	if err != nil {
		return StateFailed, err
	}
	t.mu.Lock()
	t.size = size
	t.mu.Unlock()

	t.report.Report(models.StagePrepare, models.PercentPrepare, "Preparing video upload")
	return StateUploading, nil
}

func validateVideo(payload models.VideoPayload) (int64, error) {
	if strings.TrimSpace(payload.Path) == "" {
		return 0, failure.New(failure.KindInvalidInput, "video path is required")
	}
	info, err := os.Stat(payload.Path)
	if err != nil {
		return 0, failure.Wrap(failure.KindInvalidInput, "video file not found", err)
	}
	if !info.Mode().IsRegular() {
		return 0, failure.New(failure.KindInvalidInput, "video path is not a regular file")
	}
	if info.Size() == 0 {
		return 0, failure.New(failure.KindInvalidInput, "video file is empty")
	}
	return info.Size(), nil
}

func (t *Task) upload(ctx context.Context) (State, error) {
	mintCtx, mintSpan := t.deps.Tracer.Start(ctx, tracer.SpanMint)
	token, err := t.deps.Minter.Mint(mintCtx, t.session, models.CapabilityUploadBlob)
	mintSpan.End(err)
	if err != nil {
		return StateFailed, err
	}
	t.token = token

	if err := failure.FromContext(ctx); err != nil {
		return StateFailed, err
	}

	upCtx, upSpan := t.deps.Tracer.Start(ctx, tracer.SpanUpload,
		tracer.Int64(tracer.AttrBytes, t.size),
	)
	result, err := t.deps.Uploader.Upload(upCtx, token, t.session.DID, t.video, t.report)
	if err == nil {
		upSpan.SetAttributes(
			tracer.Bool(tracer.AttrInlineBlob, result.HasBlob()),
			tracer.String(tracer.AttrJobID, result.JobID),
		)
	}
	upSpan.End(err)
	if err != nil {
		return StateFailed, err
	}
	t.deps.Metrics.AddUploadedBytes(t.size)

	t.mu.Lock()
	defer t.mu.Unlock()
	if result.HasBlob() {
		t.blob = result.Blob
		return StateBlobReady, nil
	}
	t.jobID = result.JobID
	return StatePolling, nil
}

func (t *Task) poll(ctx context.Context) (State, error) {
	t.mu.RLock()
	jobID := t.jobID
	t.mu.RUnlock()

	pollCtx, span := t.deps.Tracer.Start(ctx, tracer.SpanPoll, tracer.String(tracer.AttrJobID, jobID))
	blob, err := t.deps.Poller.Wait(pollCtx, t.token, jobID, t.report)
	span.End(err)
	if err != nil {
		return StateFailed, err
	}

	t.mu.Lock()
	t.blob = blob
	t.mu.Unlock()
	return StateReady, nil
}

func (t *Task) publish(ctx context.Context) (State, error) {
	recCtx, span := t.deps.Tracer.Start(ctx, tracer.SpanRecord)

	var (
		result *models.PublishResult
		err    error
	)
	if t.kind == ContentText {
		result, err = t.deps.Records.PublishText(recCtx, t.session, t.text, t.report)
	} else {
		t.mu.RLock()
		blob := t.blob
		t.mu.RUnlock()
		result, err = t.deps.Records.PublishVideo(recCtx, t.session, record.VideoRecord{
			Text:    t.text,
			Blob:    blob,
			AltText: t.video.AltText,
			Path:    t.video.Path,
		}, t.report)
	}
	span.End(err)
	if err != nil {
		return StateFailed, err
	}

	t.mu.Lock()
	t.result = result
	t.mu.Unlock()
	return StateDone, nil
}

// fail classifies err by the state it interrupted, emits the failed progress
// event at the last delivered percent, and records the terminal outcome.
func (t *Task) fail(ctx context.Context, state State, err error) (State, error) {
	if failure.KindOf(err) == "" {
		err = failure.Wrap(kindForState(state), failure.Message(err), err)
	}

	t.mu.Lock()
	t.err = err
	t.mu.Unlock()

	t.report.Report(models.StageFailed, t.report.Last(), failure.Message(err))
	t.finish(ctx)
	return StateFailed, err
}

func kindForState(state State) failure.Kind {
	switch state {
	case StatePrepare:
		return failure.KindInvalidInput
	case StateUploading:
		return failure.KindUpload
	case StatePublishing, StateReady:
		return failure.KindPublish
	default:
		return failure.KindProcessing
	}
}

func (t *Task) markStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		t.startedAt = t.deps.Now()
		t.deps.Metrics.Started()
	}
}

// finish records the terminal state exactly once.
func (t *Task) finish(ctx context.Context) {
	t.once.Do(func() {
		t.mu.Lock()
		if t.err != nil {
			t.state = StateFailed
		} else {
			t.state = StateDone
		}
		t.finishedAt = t.deps.Now()
		elapsed := t.finishedAt.Sub(t.startedAt)
		err, result := t.err, t.result
		t.mu.Unlock()

		outcome := string(StateDone)
		if err != nil {
			outcome = string(failure.KindOf(err))
		}
		t.deps.Metrics.RecordOutcome(string(t.kind), outcome)
		t.deps.Metrics.Finished()

		if err != nil {
			t.deps.Logger.WarnContext(ctx, "publish failed",
				"task_id", t.id,
				"kind", string(t.kind),
				"failure", outcome,
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
			)
		} else {
			t.deps.Logger.InfoContext(ctx, "publish completed",
				"task_id", t.id,
				"kind", string(t.kind),
				"uri", result.URI,
				"duration_ms", elapsed.Milliseconds(),
			)
		}
		close(t.done)
	})
}

func (t *Task) did() string {
	if t.session == nil {
		return ""
	}
	return t.session.DID
}
