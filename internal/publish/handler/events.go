package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"slowclaw/pkg/platform/httputil"
	"slowclaw/pkg/requestcontext"
)

const writeWait = 10 * time.Second

// HandleEvents streams a task's progress over a websocket: the history so far,
// then live events, then a normal close after the terminal event. A plain GET
// without an upgrade returns the history as JSON.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if !websocket.IsWebSocketUpgrade(r) {
		events, err := h.service.Events(ctx, id)
		if err != nil {
			httputil.WriteError(w, toDomainError(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, EventsResponse{ID: id, Events: events})
		return
	}

	ch, unsubscribe, err := h.service.Subscribe(ctx, id)
	if err != nil {
		httputil.WriteError(w, toDomainError(err))
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			"request_id", requestcontext.RequestID(ctx),
			"task_id", id,
			"error", err,
		)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "publish finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.DebugContext(ctx, "progress stream write failed",
					"task_id", id,
					"error", err,
				)
				return
			}
		case <-gone:
			return
		}
	}
}
