package synthesis

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/auth"
	"github.com/duskvoice/narrator/internal/db"
	"github.com/duskvoice/narrator/internal/httpserver"
	"github.com/duskvoice/narrator/pkg/blobstore"
	"github.com/duskvoice/narrator/pkg/ledger"
)

// Handler provides HTTP handlers for the synthesis API.
type Handler struct {
	orchestrator *Orchestrator
	blobs        blobstore.Store
	logger       *slog.Logger
}

// NewHandler creates a synthesis Handler.
func NewHandler(orchestrator *Orchestrator, blobs blobstore.Store, logger *slog.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, blobs: blobs, logger: logger}
}

// Routes returns a chi.Router for mounting under
// /voices/{voiceID}/stories/{storyID}/audio.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleStart)
	r.Get("/", h.handleFetch)
	return r
}

// handleStart implements POST .../audio: the start_synthesis handshake.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	voiceID, err := uuid.Parse(chi.URLParam(r, "voiceID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid voice ID")
		return
	}
	storyID := chi.URLParam(r, "storyID")
	if storyID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "story ID required")
		return
	}

	result, err := h.orchestrator.StartSynthesis(r.Context(), id.UserID, voiceID, storyID)
	if err != nil {
		var inFlight ErrInFlightLimitExceeded
		if errors.As(err, &inFlight) {
			httpserver.RespondError(w, http.StatusTooManyRequests, "too_many_requests", inFlight.Error())
			return
		}
		h.logger.Error("start_synthesis failed", "error", err, "user_id", id.UserID, "voice_id", voiceID, "story_id", storyID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to start synthesis")
		return
	}

	switch result.Kind {
	case StartAlreadyReady:
		httpserver.Respond(w, http.StatusOK, map[string]any{"status": "ready", "job_id": result.JobID, "artifact_url": result.ArtifactURL})
	case StartAlreadyProcessing, StartProcessing:
		httpserver.Respond(w, http.StatusAccepted, map[string]any{"status": "processing", "job_id": result.JobID})
	case StartQueuedForSlot:
		if result.QueuePosition != nil {
			w.Header().Set("X-Voice-Queue-Position", strconv.Itoa(*result.QueuePosition))
		}
		if result.QueueLength != nil {
			w.Header().Set("X-Voice-Queue-Length", strconv.Itoa(*result.QueueLength))
		}
		httpserver.Respond(w, http.StatusAccepted, map[string]any{"status": "queued", "job_id": result.JobID, "queue_position": result.QueuePosition, "queue_length": result.QueueLength})
	case StartAllocatingVoice:
		httpserver.Respond(w, http.StatusAccepted, map[string]any{"status": "allocating_voice", "job_id": result.JobID})
	case StartPaymentRequired:
		httpserver.Respond(w, http.StatusPaymentRequired, map[string]any{
			"status": "payment_required", "job_id": result.JobID,
			"error": ledger.ErrInsufficientCredits{Required: *result.Required, Available: *result.Available}.Error(),
		})
	case StartVoiceUnavailable:
		httpserver.RespondError(w, http.StatusConflict, "voice_unavailable", result.Reason)
	default:
		h.logger.Error("unrecognized start_synthesis result", "kind", result.Kind)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "unrecognized result")
	}
}

// handleFetch implements GET .../audio: returns the finished artifact, or
// the job's current status if not yet ready.
func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	voiceID, err := uuid.Parse(chi.URLParam(r, "voiceID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid voice ID")
		return
	}
	storyID := chi.URLParam(r, "storyID")
	if storyID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "story ID required")
		return
	}

	store := NewStore(h.orchestrator.pool)
	job, err := store.GetOrCreate(r.Context(), id.UserID, voiceID, storyID)
	if err != nil {
		h.logger.Error("fetching synthesis job", "error", err, "user_id", id.UserID, "voice_id", voiceID, "story_id", storyID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to look up job")
		return
	}

	switch job.Status {
	case db.JobStatusReady:
		if job.ArtifactBlobKey == nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "job ready with no artifact")
			return
		}
		audio, err := h.blobs.Get(r.Context(), *job.ArtifactBlobKey)
		if err != nil {
			h.logger.Error("reading artifact", "error", err, "job_id", job.JobID)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read artifact")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, job.JobID.String()+".audio", job.UpdatedAt, bytes.NewReader(audio))
	case db.JobStatusError:
		reason := "synthesis failed"
		if job.ErrorMessage != nil {
			reason = *job.ErrorMessage
		}
		httpserver.RespondError(w, http.StatusConflict, "voice_unavailable", reason)
	default:
		httpserver.Respond(w, http.StatusAccepted, map[string]any{"status": job.Status, "job_id": job.JobID})
	}
}
