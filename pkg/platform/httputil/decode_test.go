package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "slowclaw/pkg/domain-errors"
)

type captionRequest struct {
	Text string `json:"text"`
}

func (r *captionRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
}

func (r *captionRequest) Validate() error {
	if r.Text == "" {
		return errors.New("text is required")
	}
	if len(r.Text) > 10 {
		return dErrors.New(dErrors.CodeInvalidInput, "text too long")
	}
	return nil
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	t.Run("decodes a valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`))
		got, ok := DecodeJSON[captionRequest](httptest.NewRecorder(), req, logger, ctx, "rid")
		require.True(t, ok)
		assert.Equal(t, "hi", got.Text)
	})

	t.Run("malformed and empty bodies are bad requests", func(t *testing.T) {
		for _, body := range []string{`{nope}`, ``} {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			got, ok := DecodeJSON[captionRequest](w, req, logger, ctx, "rid")
			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "bad_request", decodeErr(t, w).Error)
		}
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	t.Run("normalizes before validating", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"  hi  "}`))
		got, ok := DecodeAndPrepare[captionRequest](httptest.NewRecorder(), req, logger, ctx, "rid")
		require.True(t, ok)
		assert.Equal(t, "hi", got.Text)
	})

	t.Run("plain validation errors become validation_error", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"   "}`))
		_, ok := DecodeAndPrepare[captionRequest](w, req, logger, ctx, "rid")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeErr(t, w)
		assert.Equal(t, "validation_error", body.Error)
		assert.Equal(t, "text is required", body.Description)
	})

	t.Run("domain validation errors keep their code", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"far too long text"}`))
		_, ok := DecodeAndPrepare[captionRequest](w, req, logger, ctx, "rid")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeErr(t, w).Error)
	})
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeNotFound, "publish task not found"), http.StatusNotFound, "not_found"},
		{dErrors.New(dErrors.CodeConflict, "already finished"), http.StatusConflict, "conflict"},
		{dErrors.New(dErrors.CodeUnauthorized, "bad password"), http.StatusUnauthorized, "unauthorized"},
		{dErrors.New(dErrors.CodeUpstream, "rejected"), http.StatusBadGateway, "upstream_error"},
		{dErrors.New(dErrors.CodeTimeout, "slow"), http.StatusGatewayTimeout, "timeout"},
		{dErrors.New(dErrors.CodeUnavailable, "off"), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(w, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, decodeErr(t, w).Error)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}
}
