// Package record builds post records and submits them to the repository-write
// endpoint of the session's service.
package record

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/media"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
	"slowclaw/internal/publish/xrpc"
)

// AspectReader reads the natural dimensions of a local video.
type AspectReader func(path string) (models.AspectRatio, error)

// Publisher creates post records.
type Publisher struct {
	httpClient xrpc.HTTPDoer
	logger     *slog.Logger
	now        func() time.Time
	readAspect AspectReader
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client xrpc.HTTPDoer) Option {
	return func(p *Publisher) {
		p.httpClient = client
	}
}

// WithLogger sets the logger for the publisher.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the createdAt clock.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithAspectReader overrides how video dimensions are read.
func WithAspectReader(readAspect AspectReader) Option {
	return func(p *Publisher) {
		p.readAspect = readAspect
	}
}

// New creates a record publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
		readAspect: media.AspectRatio,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VideoRecord is the input for a post with an embedded video.
type VideoRecord struct {
	Text    string
	Blob    json.RawMessage
	AltText string
	// Path is the local file the blob was uploaded from; used only to read
	// the aspect ratio.
	Path string
	// AspectRatio skips probing when already known.
	AspectRatio *models.AspectRatio
}

type postRecord struct {
	Type      string      `json:"$type"`
	Text      string      `json:"text"`
	CreatedAt string      `json:"createdAt"`
	Embed     *videoEmbed `json:"embed,omitempty"`
}

type videoEmbed struct {
	Type        string              `json:"$type"`
	Video       json.RawMessage     `json:"video"`
	Alt         string              `json:"alt,omitempty"`
	AspectRatio *models.AspectRatio `json:"aspectRatio,omitempty"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// PublishText creates a text-only post.
func (p *Publisher) PublishText(ctx context.Context, sess *models.Session, text string, report *progress.Reporter) (*models.PublishResult, error) {
	return p.create(ctx, sess, p.newPost(text, nil), report)
}

// PublishVideo creates a post embedding an uploaded video blob. The aspect
// ratio is best effort: when it cannot be determined the field is omitted.
func (p *Publisher) PublishVideo(ctx context.Context, sess *models.Session, rec VideoRecord, report *progress.Reporter) (*models.PublishResult, error) {
	if !models.HasBlob(rec.Blob) {
		return nil, failure.New(failure.KindPublish, "no video blob to publish")
	}
	embed := &videoEmbed{
		Type:        models.TypeEmbedVideo,
		Video:       rec.Blob,
		Alt:         rec.AltText,
		AspectRatio: p.aspectRatio(ctx, rec),
	}
	return p.create(ctx, sess, p.newPost(rec.Text, embed), report)
}

func (p *Publisher) newPost(text string, embed *videoEmbed) postRecord {
	return postRecord{
		Type:      models.CollectionPost,
		Text:      text,
		CreatedAt: p.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Embed:     embed,
	}
}

func (p *Publisher) aspectRatio(ctx context.Context, rec VideoRecord) *models.AspectRatio {
	if rec.AspectRatio != nil && rec.AspectRatio.Width > 0 && rec.AspectRatio.Height > 0 {
		return rec.AspectRatio
	}
	if rec.Path == "" || p.readAspect == nil {
		return nil
	}
	ar, err := p.readAspect(rec.Path)
	if err != nil || ar.Width <= 0 || ar.Height <= 0 {
		p.logger.DebugContext(ctx, "aspect ratio unavailable, omitting",
			"path", rec.Path,
			"error", err,
		)
		return nil
	}
	return &ar
}

func (p *Publisher) create(ctx context.Context, sess *models.Session, post postRecord, report *progress.Reporter) (*models.PublishResult, error) {
	if sess == nil || sess.AccessToken == "" || sess.DID == "" {
		return nil, failure.New(failure.KindAuth, "no active session")
	}
	if err := failure.FromContext(ctx); err != nil {
		return nil, err
	}

	endpoint := sess.ServiceEndpoint
	if endpoint == "" {
		endpoint = models.DefaultServiceEndpoint
	}
	client := xrpc.New(endpoint, xrpc.WithHTTPClient(p.httpClient), xrpc.WithLogger(p.logger))

	report.Report(models.StagePublishing, models.PercentPublishing, "Publishing post")

	resp, err := client.Do(ctx, xrpc.Request{
		Method: http.MethodPost,
		NSID:   models.NSIDCreateRecord,
		Token:  sess.AccessToken,
		JSON: createRecordRequest{
			Repo:       sess.DID,
			Collection: models.CollectionPost,
			Record:     post,
		},
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindPublish, "could not publish post", err)
	}
	if !resp.OK() {
		p.logger.WarnContext(ctx, "create record rejected",
			"status", resp.Status,
			"did", sess.DID,
		)
		return nil, failure.WithRemote(failure.KindPublish, resp.Status, resp.ErrorCode(), resp.ErrorMessage())
	}

	var body createRecordResponse
	if err := resp.Decode(&body); err != nil {
		return nil, failure.Wrap(failure.KindPublish, "malformed create record response", err)
	}
	if body.URI == "" {
		return nil, failure.New(failure.KindPublish, "create record response missing uri")
	}

	report.Report(models.StageDone, models.PercentDone, "Published")
	return &models.PublishResult{URI: body.URI, CID: body.CID}, nil
}
