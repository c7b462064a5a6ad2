package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "tradelens/internal/errors"
	"tradelens/internal/validation"
)

// maxClientLogBytes bounds a client log entry.
const maxClientLogBytes = 16 << 10

// ClientLogHandler records log entries sent by the presentation layer
type ClientLogHandler struct {
	logger    *slog.Logger
	validator *validation.RequestValidator
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(logger *slog.Logger) *ClientLogHandler {
	return &ClientLogHandler{
		logger:    logger.With(slog.String("handler", "client_log")),
		validator: validation.NewRequestValidator(),
	}
}

// LogRequest represents a client log entry
type LogRequest struct {
	Level   string                 `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message string                 `json:"message" validate:"required,max=2000"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Source  string                 `json:"source,omitempty" validate:"max=200"`
}

// Handle handles POST /api/log
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClientLogBytes)).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			apierrors.WriteError(w, apierrors.ErrPayloadTooLarge)
			return
		}
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		if apiErr, ok := err.(*apierrors.APIError); ok {
			apierrors.WriteError(w, apiErr)
			return
		}
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}

	attrs := []slog.Attr{
		slog.String("client_source", validation.StripUnprintable(req.Source)),
	}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}

	level := slog.LevelInfo
	switch req.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h.logger.LogAttrs(r.Context(), level, validation.StripUnprintable(req.Message), attrs...)

	render.JSON(w, r, map[string]interface{}{
		"success": true,
	})
}
