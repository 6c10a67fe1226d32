package voice

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/audit"
	"github.com/duskvoice/narrator/internal/auth"
	"github.com/duskvoice/narrator/internal/httpserver"
)

// Handler provides HTTP handlers for the voices API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a voice Handler.
func NewHandler(svc *Service, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router for mounting under /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
	})
	return r
}

// CreateRequest is the body for POST /voices.
type CreateRequest struct {
	SampleBlobKey string `json:"sample_blob_key" validate:"required"`
	SampleBytes   int64  `json:"sample_bytes" validate:"required,gt=0"`
	Provider      string `json:"provider" validate:"required,oneof=A B"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	v, err := h.svc.Create(r.Context(), id.UserID, req.SampleBlobKey, req.SampleBytes, req.Provider)
	if err != nil {
		var invalid ErrInvalidArgument
		if errors.As(err, &invalid) {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", invalid.Error())
			return
		}
		h.logger.Error("creating voice", "error", err, "user_id", id.UserID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create voice")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"provider": req.Provider})
		h.audit.LogFromRequest(r, "create", "voice", v.VoiceID, detail)
	}

	httpserver.Respond(w, http.StatusCreated, v)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	voiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid voice ID")
		return
	}

	v, err := h.svc.Get(r.Context(), voiceID, id.UserID)
	if err != nil {
		h.respondGetErr(w, err, voiceID)
		return
	}

	httpserver.Respond(w, http.StatusOK, v)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	voiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid voice ID")
		return
	}

	if err := h.svc.Delete(r.Context(), voiceID, id.UserID); err != nil {
		h.respondGetErr(w, err, voiceID)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "voice", voiceID, nil)
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) respondGetErr(w http.ResponseWriter, err error, voiceID uuid.UUID) {
	var notFound ErrNotFound
	var forbidden ErrForbidden
	switch {
	case errors.As(err, &notFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "voice not found")
	case errors.As(err, &forbidden):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "voice belongs to another user")
	default:
		h.logger.Error("voice lookup failed", "error", err, "voice_id", voiceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to look up voice")
	}
}
