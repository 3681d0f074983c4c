package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hitoshi/profilesync/internal/identity"
	"github.com/hitoshi/profilesync/internal/model"
)

// maxEventBodySize はセッションイベントのリクエストボディの上限（バイト）。
const maxEventBodySize = 64 << 10

// EventHandler はIdPからのセッション変更通知を受け付けるHTTPハンドラー。
type EventHandler struct {
	publisher identity.Publisher
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(publisher identity.Publisher) *EventHandler {
	return &EventHandler{publisher: publisher}
}

// eventAcceptedResponse はイベント受付時のレスポンス。
type eventAcceptedResponse struct {
	ID      string `json:"id"`
	Session bool   `json:"session"`
}

// PublishEvent はセッションイベントを検証してイベントソースに発行する。
// POST /identity/events
func (h *EventHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleServiceError(w, model.NewInvalidEventError("request body too large"))
			return
		}
		handleServiceError(w, model.NewInvalidEventError("failed to read request body"))
		return
	}

	event, err := identity.DecodeEvent(body)
	if err != nil {
		handleServiceError(w, model.NewInvalidEventError("malformed JSON"))
		return
	}
	if err := identity.Validate(event); err != nil {
		handleServiceError(w, model.NewInvalidEventError("identity.uid is required"))
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if err := h.publisher.Publish(r.Context(), event); err != nil {
		slog.Error("failed to publish identity event",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, eventAcceptedResponse{
		ID:      event.ID,
		Session: event.HasSession(),
	})
}
