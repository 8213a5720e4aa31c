// Package service runs publish tasks in the background for the local API.
//
// Each accepted publish becomes a pipeline.Task with its own goroutine and
// cancel function. Running tasks live in a map; finished tasks move into a
// bounded LRU so their final snapshot and progress history stay queryable
// without growing memory forever.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"slowclaw/internal/publish/facade"
	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/pipeline"
	"slowclaw/internal/publish/progress"
	"slowclaw/internal/publish/tracer"
	dErrors "slowclaw/pkg/domain-errors"
)

const defaultRetain = 256

// SessionSource supplies the session for new publish calls.
type SessionSource interface {
	Session(ctx context.Context) (*models.Session, error)
}

// resettable is implemented by session sources that can drop a cached
// session and authenticate again.
type resettable interface {
	Reset()
}

// Requester issues one-shot authenticated diagnostics calls.
type Requester interface {
	Do(ctx context.Context, sess *models.Session, req facade.Request) (*facade.Response, error)
}

// Config tunes the service.
type Config struct {
	// Retain bounds how many finished tasks stay queryable.
	Retain int
	// RunTimeout caps a whole publish call; zero means no cap beyond the
	// poll deadline.
	RunTimeout time.Duration
}

type running struct {
	task   *pipeline.Task
	cancel context.CancelFunc
	hub    *hub
}

type finished struct {
	snapshot pipeline.Snapshot
	hub      *hub
}

// Service owns the background publish tasks.
type Service struct {
	publisher *pipeline.Publisher
	sessions  SessionSource
	requester Requester
	tracer    tracer.Tracer
	logger    *slog.Logger
	timeout   time.Duration
	newID     func() string

	root     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	active   map[string]*running
	finished *lru.Cache[string, finished]
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRequester enables the authenticated request passthrough.
func WithRequester(r Requester) Option {
	return func(s *Service) {
		s.requester = r
	}
}

// WithTracer sets the tracer used for session spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithIDGenerator overrides task id generation (for testing).
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New creates the service.
func New(publisher *pipeline.Publisher, sessions SessionSource, cfg Config, opts ...Option) (*Service, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if cfg.Retain <= 0 {
		cfg.Retain = defaultRetain
	}
	cache, err := lru.New[string, finished](cfg.Retain)
	if err != nil {
		return nil, fmt.Errorf("create task cache: %w", err)
	}

	root, stop := context.WithCancel(context.Background())
	s := &Service{
		publisher: publisher,
		sessions:  sessions,
		tracer:    tracer.NewNoop(),
		logger:    slog.New(slog.DiscardHandler),
		timeout:   cfg.RunTimeout,
		newID:     func() string { return uuid.New().String() },
		root:      root,
		stop:      stop,
		active:    make(map[string]*running),
		finished:  cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PublishText starts a text post and returns its initial snapshot.
func (s *Service) PublishText(ctx context.Context, text string) (pipeline.Snapshot, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	return s.start(ctx, func(id string, sink progress.Sink) *pipeline.Task {
		return s.publisher.NewTextTask(id, sess, text, sink)
	})
}

// PublishVideo starts a video post and returns its initial snapshot.
func (s *Service) PublishVideo(ctx context.Context, text string, payload models.VideoPayload) (pipeline.Snapshot, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	return s.start(ctx, func(id string, sink progress.Sink) *pipeline.Task {
		return s.publisher.NewVideoTask(id, sess, text, payload, sink)
	})
}

func (s *Service) session(ctx context.Context) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSession)
	sess, err := s.sessions.Session(ctx)
	if err == nil {
		span.SetAttributes(tracer.String(tracer.AttrDID, sess.DID))
	}
	span.End(err)
	return sess, err
}

// invalidateSession drops the cached session after the remote rejected its
// token, so the next call logs in again.
func (s *Service) invalidateSession(ctx context.Context, args ...any) {
	r, ok := s.sessions.(resettable)
	if !ok {
		return
	}
	r.Reset()
	s.logger.InfoContext(ctx, "session rejected by remote; will authenticate again", args...)
}

func (s *Service) start(ctx context.Context, build func(id string, sink progress.Sink) *pipeline.Task) (pipeline.Snapshot, error) {
	id := s.newID()
	h := newHub()
	task := build(id, progress.Fanout(h.publish, s.traceProgress(id)))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pipeline.Snapshot{}, dErrors.New(dErrors.CodeUnavailable, "publish service is shutting down")
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.root, s.timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.root)
	}
	s.active[id] = &running{task: task, cancel: cancel, hub: h}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "publish accepted",
		"task_id", id,
		"kind", string(task.Kind()),
	)

	go func() {
		defer s.wg.Done()
		defer cancel()
		if _, err := task.Run(runCtx); failure.SessionExpired(err) {
			s.invalidateSession(s.root, "task_id", id)
		}
		s.retire(id)
	}()

	return task.Snapshot(), nil
}

func (s *Service) traceProgress(id string) progress.Sink {
	return func(ev models.ProgressEvent) {
		s.logger.Debug("publish progress",
			"task_id", id,
			"stage", string(ev.Stage),
			"percent", ev.Percent,
		)
	}
}

// retire moves a terminal task from the active set into the LRU.
func (s *Service) retire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.active[id]
	if !ok {
		return
	}
	delete(s.active, id)
	r.hub.close()
	s.finished.Add(id, finished{snapshot: r.task.Snapshot(), hub: r.hub})
}

// Get returns the current snapshot of a task.
func (s *Service) Get(_ context.Context, id string) (pipeline.Snapshot, error) {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		return r.task.Snapshot(), nil
	}
	if f, ok := s.finished.Get(id); ok {
		return f.snapshot, nil
	}
	return pipeline.Snapshot{}, dErrors.New(dErrors.CodeNotFound, "publish task not found")
}

// Cancel aborts a running task. The task fails with failure.KindCanceled at
// its next suspension point.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		s.logger.InfoContext(ctx, "publish cancel requested", "task_id", id)
		r.cancel()
		return nil
	}
	if _, ok := s.finished.Peek(id); ok {
		return dErrors.New(dErrors.CodeConflict, "publish task already finished")
	}
	return dErrors.New(dErrors.CodeNotFound, "publish task not found")
}

// Subscribe streams a task's progress events, starting with everything
// emitted so far. The channel closes after the terminal event; call the
// returned function to stop early.
func (s *Service) Subscribe(_ context.Context, id string) (<-chan models.ProgressEvent, func(), error) {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		ch, unsubscribe := r.hub.subscribe()
		return ch, unsubscribe, nil
	}
	if f, ok := s.finished.Get(id); ok {
		ch, unsubscribe := f.hub.subscribe()
		return ch, unsubscribe, nil
	}
	return nil, nil, dErrors.New(dErrors.CodeNotFound, "publish task not found")
}

// Events returns the progress history of a task.
func (s *Service) Events(_ context.Context, id string) ([]models.ProgressEvent, error) {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		return r.hub.events(), nil
	}
	if f, ok := s.finished.Get(id); ok {
		return f.hub.events(), nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "publish task not found")
}

// Request performs one authenticated passthrough call with the current
// session.
func (s *Service) Request(ctx context.Context, req facade.Request) (*facade.Response, error) {
	if s.requester == nil {
		return nil, failure.New(failure.KindInvalidInput, "request passthrough is disabled")
	}
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.requester.Do(ctx, sess, req)
	if err == nil && resp.Authenticated && failure.SessionRejected(resp.Status, resp.ErrorCode()) {
		s.invalidateSession(ctx, "target", req.Target)
	}
	return resp, err
}

// Active reports how many tasks are running.
func (s *Service) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Shutdown rejects new tasks, cancels every running task and waits for them
// to record their outcome or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
