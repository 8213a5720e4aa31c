package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slowclaw/internal/publish/clients/serviceauth"
	"slowclaw/internal/publish/clients/video"
	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/poller"
	"slowclaw/internal/publish/record"
)

const (
	timeoutWait = 2 * time.Second
	tick        = 5 * time.Millisecond
)

// remote stubs the record service and the video processing host.
type remote struct {
	mu          sync.Mutex
	records     []map[string]any
	uploads     []*http.Request
	uploadBody  []byte
	jobStatuses []string
	polls       int
}

func (r *remote) service() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/"+models.NSIDGetServiceAuth, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token":"scoped-token"}`)
	})
	mux.HandleFunc("/xrpc/"+models.NSIDCreateRecord, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.records = append(r.records, body)
		r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"uri":"at://did:plc:abc/app.bsky.feed.post/3k","cid":"bafy-1"}`)
	})
	return httptest.NewServer(mux)
}

func (r *remote) videoHost() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/"+models.NSIDUploadVideo, func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.uploads = append(r.uploads, req)
		r.uploadBody = body
		r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jobId":"job-1","state":"JOB_STATE_CREATED"}`)
	})
	mux.HandleFunc("/xrpc/"+models.NSIDGetJobStatus, func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		idx := r.polls
		if idx >= len(r.jobStatuses) {
			idx = len(r.jobStatuses) - 1
		}
		r.polls++
		body := r.jobStatuses[idx]
		r.mu.Unlock()
		if req.URL.Query().Get("jobId") != "job-1" {
			http.Error(w, "unknown job", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	return httptest.NewServer(mux)
}

func newPipeline(serviceURL, videoURL string) *Publisher {
	status := video.NewStatusClient(videoURL)
	return NewPublisher(Dependencies{
		Minter:   serviceauth.New(),
		Uploader: video.NewUploader(videoURL, nil),
		Poller:   poller.New(status, poller.Config{Interval: 10 * time.Millisecond, Timeout: timeoutWait}),
		Records: record.New(record.WithAspectReader(func(string) (models.AspectRatio, error) {
			return models.AspectRatio{}, errors.New("no dimensions")
		})),
	})
}

func TestPublishTextEndToEnd(t *testing.T) {
	r := &remote{}
	svc := r.service()
	defer svc.Close()

	pub := newPipeline(svc.URL, svc.URL)
	sess := &models.Session{AccessToken: "access", DID: "did:plc:abc", ServiceEndpoint: svc.URL}

	result, err := pub.PublishText(context.Background(), sess, "hello world", nil)

	require.NoError(t, err)
	assert.Equal(t, "bafy-1", result.CID)

	require.Len(t, r.records, 1)
	body := r.records[0]
	assert.Equal(t, "did:plc:abc", body["repo"])
	assert.Equal(t, models.CollectionPost, body["collection"])
	rec := body["record"].(map[string]any)
	assert.Equal(t, "hello world", rec["text"])
	assert.NotContains(t, rec, "embed")
	assert.NotEmpty(t, rec["createdAt"])
}

func TestPublishVideoEndToEnd(t *testing.T) {
	r := &remote{jobStatuses: []string{
		`{"jobStatus":{"jobId":"job-1","state":"processing","progress":0.5}}`,
		`{"jobStatus":{"jobId":"job-1","state":"completed","blob":{"ref":"blobref-1"}}}`,
	}}
	svc := r.service()
	defer svc.Close()
	vid := r.videoHost()
	defer vid.Close()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0o600))

	var events []models.ProgressEvent
	pub := newPipeline(svc.URL, vid.URL)
	sess := &models.Session{AccessToken: "not-a-jwt", DID: "did:plc:abc", ServiceEndpoint: svc.URL}

	result, err := pub.PublishVideo(context.Background(), sess, "look", models.VideoPayload{Path: path},
		func(ev models.ProgressEvent) { events = append(events, ev) })

	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/3k", result.URI)

	var stages []models.Stage
	last := 0
	for _, ev := range events {
		stages = append(stages, ev.Stage)
		assert.GreaterOrEqual(t, ev.Percent, last)
		last = ev.Percent
	}
	assert.Equal(t, []models.Stage{
		models.StagePrepare,
		models.StageUploaded,
		models.StageProcessing,
		models.StageReady,
		models.StagePublishing,
		models.StageDone,
	}, stages)
	assert.Equal(t, 50, events[2].Percent)

	require.Len(t, r.uploads, 1)
	up := r.uploads[0]
	assert.Equal(t, "Bearer scoped-token", up.Header.Get("Authorization"))
	assert.Equal(t, "video/mp4", up.Header.Get("Content-Type"))
	assert.Equal(t, "did:plc:abc", up.URL.Query().Get("did"))
	assert.Equal(t, "clip.mp4", up.URL.Query().Get("name"))
	assert.Equal(t, "fake video bytes", string(r.uploadBody))

	require.Len(t, r.records, 1)
	rec := r.records[0]["record"].(map[string]any)
	embed := rec["embed"].(map[string]any)
	assert.Equal(t, models.TypeEmbedVideo, embed["$type"])
	assert.Equal(t, map[string]any{"ref": "blobref-1"}, embed["video"])
	assert.NotContains(t, embed, "aspectRatio")
}

func TestPublishVideoTimesOut(t *testing.T) {
	r := &remote{jobStatuses: []string{`{"state":"processing"}`}}
	svc := r.service()
	defer svc.Close()
	vid := r.videoHost()
	defer vid.Close()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	pub := NewPublisher(Dependencies{
		Minter:   serviceauth.New(),
		Uploader: video.NewUploader(vid.URL, nil),
		Poller:   poller.New(video.NewStatusClient(vid.URL), poller.Config{Interval: 50 * time.Millisecond, Timeout: 200 * time.Millisecond}),
		Records:  record.New(),
	})
	sess := &models.Session{AccessToken: "a", DID: "did:plc:abc", ServiceEndpoint: svc.URL}

	result, err := pub.PublishVideo(context.Background(), sess, "", models.VideoPayload{Path: path}, nil)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, failure.Timeout)
	assert.Empty(t, r.records)
}
