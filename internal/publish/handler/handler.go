// Package handler exposes the publish service over the local HTTP API.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"slowclaw/internal/publish/facade"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/pipeline"
	"slowclaw/pkg/platform/httputil"
	"slowclaw/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service

// Service defines the publish operations the API needs.
type Service interface {
	PublishText(ctx context.Context, text string) (pipeline.Snapshot, error)
	PublishVideo(ctx context.Context, text string, payload models.VideoPayload) (pipeline.Snapshot, error)
	Get(ctx context.Context, id string) (pipeline.Snapshot, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan models.ProgressEvent, func(), error)
	Events(ctx context.Context, id string) ([]models.ProgressEvent, error)
	Request(ctx context.Context, req facade.Request) (*facade.Response, error)
}

// Handler handles the publish endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	upgrader websocket.Upgrader
}

// New creates a new publish Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Register mounts the request/response routes. They are safe to wrap in a
// handler timeout.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/publish/text", h.HandlePublishText)
	r.Post("/v1/publish/video", h.HandlePublishVideo)
	r.Get("/v1/publish/{id}", h.HandleGet)
	r.Delete("/v1/publish/{id}", h.HandleCancel)
	r.Post("/v1/xrpc", h.HandleRequest)
}

// RegisterStreams mounts the long-lived progress stream. It must not sit
// behind http.TimeoutHandler, which cannot hijack connections.
func (h *Handler) RegisterStreams(r chi.Router) {
	r.Get("/v1/publish/{id}/events", h.HandleEvents)
}

// HandlePublishText starts a text post and answers 202 with the task snapshot.
func (h *Handler) HandlePublishText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PublishTextRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	snap, err := h.service.PublishText(ctx, req.Text)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to start text publish",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, toDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, snap)
}

// HandlePublishVideo starts a video post and answers 202 with the task snapshot.
func (h *Handler) HandlePublishVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PublishVideoRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	snap, err := h.service.PublishVideo(ctx, req.Text, req.Payload())
	if err != nil {
		h.logger.WarnContext(ctx, "failed to start video publish",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, toDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, snap)
}

// HandleGet returns the task snapshot.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, toDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

// HandleCancel requests cancellation. The task reports the canceled failure
// once it reaches its next suspension point.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Cancel(r.Context(), id); err != nil {
		httputil.WriteError(w, toDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, CancelResponse{ID: id, Status: "canceling"})
}

// HandleRequest forwards one authenticated call through the facade. Remote
// non-2xx answers are returned as data with ok=false, not as errors.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[XRPCRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.service.Request(ctx, req.toFacade())
	if err != nil {
		h.logger.WarnContext(ctx, "passthrough request failed",
			"request_id", requestID,
			"target", req.Target,
			"error", err,
		)
		httputil.WriteError(w, toDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
