package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slowclaw/internal/publish/clients/session"
	"slowclaw/internal/publish/facade"
	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/pipeline"
	"slowclaw/internal/publish/record"
	"slowclaw/internal/publish/tracer"
)

// expiringService issues access-N on the Nth login and rejects access-1 as
// expired everywhere else.
func expiringService(t *testing.T, logins, records *atomic.Int32) *httptest.Server {
	t.Helper()
	rejectFirst := func(w http.ResponseWriter, r *http.Request) bool {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") == "Bearer access-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"ExpiredToken","message":"Token has expired"}`)
			return true
		}
		return false
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/"+models.NSIDCreateSession, func(w http.ResponseWriter, _ *http.Request) {
		n := logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"accessJwt":"access-%d","did":"did:plc:abc","handle":"alice.test"}`, n)
	})
	mux.HandleFunc("/xrpc/"+models.NSIDCreateRecord, func(w http.ResponseWriter, r *http.Request) {
		records.Add(1)
		if rejectFirst(w, r) {
			return
		}
		_, _ = io.WriteString(w, `{"uri":"at://did:plc:abc/app.bsky.feed.post/1","cid":"cid-ok"}`)
	})
	mux.HandleFunc("/xrpc/com.atproto.server.getSession", func(w http.ResponseWriter, r *http.Request) {
		if rejectFirst(w, r) {
			return
		}
		_, _ = io.WriteString(w, `{"did":"did:plc:abc"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loginSource(srv *httptest.Server) *session.Source {
	return session.NewSource(session.New(), models.Credentials{
		ServiceEndpoint: srv.URL,
		Identifier:      "alice.test",
		Password:        "app-password",
	})
}

func waitIdle(t *testing.T, svc *Service) {
	t.Helper()
	require.Eventually(t, func() bool { return svc.Active() == 0 }, waitFor, tick)
}

func TestRejectedSessionLogsInAgain(t *testing.T) {
	var logins, records atomic.Int32
	srv := expiringService(t, &logins, &records)

	svc, err := New(pipeline.NewPublisher(pipeline.Dependencies{Records: record.New()}), loginSource(srv), Config{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Shutdown(context.Background())) }()

	first, err := svc.PublishText(context.Background(), "one")
	require.NoError(t, err)
	waitIdle(t, svc)

	failed, err := svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, failed.Error)
	assert.Equal(t, failure.KindPublish, failed.Error.Kind)
	assert.Equal(t, http.StatusBadRequest, failed.Error.Status)

	second, err := svc.PublishText(context.Background(), "two")
	require.NoError(t, err)
	waitIdle(t, svc)

	done, err := svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, done.State)
	assert.Equal(t, int32(2), logins.Load())
	assert.Equal(t, int32(2), records.Load())
}

func TestRejectedPassthroughLogsInAgain(t *testing.T) {
	var logins, records atomic.Int32
	srv := expiringService(t, &logins, &records)

	svc, err := New(pipeline.NewPublisher(pipeline.Dependencies{}), loginSource(srv), Config{},
		WithRequester(facade.New()))
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Shutdown(context.Background())) }()

	req := facade.Request{Target: "/xrpc/com.atproto.server.getSession"}
	resp, err := svc.Request(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.OK)

	resp, err = svc.Request(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, int32(2), logins.Load())
}

// namedTracer records the names of started spans.
type namedTracer struct {
	mu    sync.Mutex
	names []string
}

func (n *namedTracer) Start(ctx context.Context, name string, _ ...tracer.Attribute) (context.Context, tracer.Span) {
	n.mu.Lock()
	n.names = append(n.names, name)
	n.mu.Unlock()
	return tracer.NewNoop().Start(ctx, name)
}

func (n *namedTracer) started() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.names...)
}

func TestSessionLookupIsTraced(t *testing.T) {
	tr := &namedTracer{}
	pub := pipeline.NewPublisher(pipeline.Dependencies{Records: stubRecords{}})
	svc, err := New(pub, staticSessions{err: failure.New(failure.KindAuth, "no session")}, Config{}, WithTracer(tr))
	require.NoError(t, err)

	_, err = svc.PublishText(context.Background(), "hi")

	require.ErrorIs(t, err, failure.Auth)
	assert.Equal(t, []string{tracer.SpanSession}, tr.started())
}
