// Package poller waits for a remote transcoding job to reach a terminal state.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
)

// StatusFetcher fetches one job status.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, token *models.ScopedAuthToken, jobID string) (*models.JobStatus, error)
}

// Config holds the poll cadence and deadline.
type Config struct {
	Interval time.Duration // default 1.5s
	Timeout  time.Duration // default 180s, measured from poll start
}

// Poller polls at a fixed cadence. It only keeps polling on a well-formed
// "still working" status; a failed status request ends the wait.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	onPoll   func(models.JobState)
}

// Option configures the Poller.
type Option func(*Poller)

// WithLogger sets the logger for the poller.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithPollObserver registers a callback invoked with the state of every
// successful poll (used for metrics).
func WithPollObserver(fn func(models.JobState)) Option {
	return func(p *Poller) {
		p.onPoll = fn
	}
}

// New creates a poller, applying defaults for zero config values.
func New(fetcher StatusFetcher, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = models.DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = models.DefaultPollTimeout
	}
	p := &Poller{
		fetcher:  fetcher,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait polls jobID until it yields a blob reference, fails, or the deadline
// elapses. The deadline also bounds each status request, so a stalled request
// ends as failure.KindTimeout rather than waiting for the HTTP client timeout.
// Cancellation of ctx is observed before each poll and during sleeps.
func (p *Poller) Wait(ctx context.Context, token *models.ScopedAuthToken, jobID string, report *progress.Reporter) (json.RawMessage, error) {
	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		if err := p.interrupted(ctx, pollCtx, jobID); err != nil {
			return nil, err
		}

		status, err := p.fetcher.GetJobStatus(pollCtx, token, jobID)
		if err != nil {
			if deadlineErr := p.interrupted(ctx, pollCtx, jobID); deadlineErr != nil {
				return nil, deadlineErr
			}
			return nil, err
		}
		if p.onPoll != nil {
			p.onPoll(status.State)
		}

		p.logger.DebugContext(ctx, "job status",
			"job_id", jobID,
			"attempt", attempt,
			"state", status.RawState,
		)

		blob, done, err := evaluate(status)
		if err != nil {
			return nil, err
		}
		if done {
			report.Report(models.StageReady, models.PercentReady, "Video processed")
			return blob, nil
		}

		if status.Progress != nil {
			pct := DisplayPercent(*status.Progress)
			report.Report(models.StageProcessing, pct, fmt.Sprintf("Processing video (%d%%)", pct))
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, p.interrupted(ctx, pollCtx, jobID)
		case <-timer.C:
		}
	}
}

// interrupted reports why polling must stop: caller cancellation wins over
// the poll deadline.
func (p *Poller) interrupted(ctx, pollCtx context.Context, jobID string) error {
	if err := failure.FromContext(ctx); err != nil {
		return err
	}
	if pollCtx.Err() != nil {
		return timeoutError(jobID, p.timeout)
	}
	return nil
}

// evaluate decides whether a status is terminal. A blob wins over any state.
func evaluate(status *models.JobStatus) (json.RawMessage, bool, error) {
	if models.HasBlob(status.Blob) {
		return status.Blob, true, nil
	}
	switch status.State {
	case models.JobStateCompleted:
		return nil, false, failure.New(failure.KindProcessing, "completed but no blob returned")
	case models.JobStateFailed:
		msg := status.Error
		if msg == "" {
			msg = status.RawState
		}
		return nil, false, failure.New(failure.KindProcessing, msg)
	}
	return nil, false, nil
}

func timeoutError(jobID string, timeout time.Duration) error {
	return failure.New(failure.KindTimeout,
		fmt.Sprintf("video processing did not finish within %s (job %s)", timeout, jobID))
}
