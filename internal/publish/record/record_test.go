package record

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
)

type RecordSuite struct {
	suite.Suite
	srv    *httptest.Server
	status int
	resp   string
	got    map[string]any
	auth   string
	events []models.ProgressEvent
	now    time.Time
}

func TestRecordSuite(t *testing.T) {
	suite.Run(t, new(RecordSuite))
}

func (s *RecordSuite) SetupTest() {
	s.status = http.StatusOK
	s.resp = `{"uri":"at://did:plc:abc/app.bsky.feed.post/3k","cid":"bafy"}`
	s.got = nil
	s.events = nil
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/"+models.NSIDCreateRecord {
			http.NotFound(w, r)
			return
		}
		s.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&s.got)
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, s.resp)
	}))
}

func (s *RecordSuite) TearDownTest() {
	s.srv.Close()
}

func (s *RecordSuite) session() *models.Session {
	return &models.Session{AccessToken: "access", DID: "did:plc:abc", ServiceEndpoint: s.srv.URL}
}

func (s *RecordSuite) reporter() *progress.Reporter {
	return progress.NewReporter(func(ev models.ProgressEvent) { s.events = append(s.events, ev) })
}

func (s *RecordSuite) publisher(opts ...Option) *Publisher {
	return New(append([]Option{WithClock(func() time.Time { return s.now })}, opts...)...)
}

func (s *RecordSuite) TestPublishText() {
	res, err := s.publisher().PublishText(context.Background(), s.session(), "hello", s.reporter())

	s.Require().NoError(err)
	s.Equal(&models.PublishResult{URI: "at://did:plc:abc/app.bsky.feed.post/3k", CID: "bafy"}, res)
	s.Equal("Bearer access", s.auth)
	s.Equal("did:plc:abc", s.got["repo"])
	s.Equal(models.CollectionPost, s.got["collection"])
	s.Equal(map[string]any{
		"$type":     models.CollectionPost,
		"text":      "hello",
		"createdAt": "2026-03-01T12:00:00.000Z",
	}, s.got["record"])

	s.Require().Len(s.events, 2)
	s.Equal(models.StagePublishing, s.events[0].Stage)
	s.Equal(models.PercentPublishing, s.events[0].Percent)
	s.Equal(models.StageDone, s.events[1].Stage)
	s.Equal(100, s.events[1].Percent)
}

func (s *RecordSuite) TestPublishVideoWithAspectRatio() {
	readAspect := func(string) (models.AspectRatio, error) { return models.AspectRatio{Width: 1920, Height: 1080}, nil }

	_, err := s.publisher(WithAspectReader(readAspect)).PublishVideo(context.Background(), s.session(), VideoRecord{
		Text:    "look",
		Blob:    json.RawMessage(`{"$type":"blob","ref":{"$link":"bafk"},"mimeType":"video/mp4","size":10}`),
		AltText: "a cat",
		Path:    "/tmp/clip.mp4",
	}, s.reporter())

	s.Require().NoError(err)
	embed := s.got["record"].(map[string]any)["embed"].(map[string]any)
	s.Equal(models.TypeEmbedVideo, embed["$type"])
	s.Equal("a cat", embed["alt"])
	s.Equal(map[string]any{"width": float64(1920), "height": float64(1080)}, embed["aspectRatio"])
	s.Equal("bafk", embed["video"].(map[string]any)["ref"].(map[string]any)["$link"])
}

func (s *RecordSuite) TestPublishVideoOmitsUnknownAspectRatio() {
	readAspect := func(string) (models.AspectRatio, error) { return models.AspectRatio{}, errors.New("not an mp4") }

	_, err := s.publisher(WithAspectReader(readAspect)).PublishVideo(context.Background(), s.session(), VideoRecord{
		Blob: json.RawMessage(`{"ref":"b"}`),
		Path: "/tmp/clip.webm",
	}, s.reporter())

	s.Require().NoError(err)
	embed := s.got["record"].(map[string]any)["embed"].(map[string]any)
	s.NotContains(embed, "aspectRatio")
	s.NotContains(embed, "alt")
}

func (s *RecordSuite) TestPublishVideoRequiresBlob() {
	_, err := s.publisher().PublishVideo(context.Background(), s.session(), VideoRecord{Blob: json.RawMessage(`{}`)}, s.reporter())

	s.ErrorIs(err, failure.Publish)
	s.Nil(s.got)
}

func (s *RecordSuite) TestRejectedRecordIsPublishFailure() {
	s.status = http.StatusBadRequest
	s.resp = `{"error":"InvalidRecord","message":"text too long"}`

	_, err := s.publisher().PublishText(context.Background(), s.session(), "hello", s.reporter())

	s.Require().ErrorIs(err, failure.Publish)
	var fe *failure.Error
	s.Require().ErrorAs(err, &fe)
	s.Equal(http.StatusBadRequest, fe.Status)
	s.Equal("text too long", fe.Message)
	s.Require().Len(s.events, 1)
	s.Equal(models.StagePublishing, s.events[0].Stage)
}

func (s *RecordSuite) TestCanceledBeforeCall() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.publisher().PublishText(ctx, s.session(), "hello", s.reporter())

	s.ErrorIs(err, failure.Canceled)
	s.Nil(s.got)
	s.Empty(s.events)
}
