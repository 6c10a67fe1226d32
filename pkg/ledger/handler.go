package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duskvoice/narrator/internal/audit"
	"github.com/duskvoice/narrator/internal/auth"
	"github.com/duskvoice/narrator/internal/httpserver"
)

// Handler provides HTTP handlers for the credits API.
type Handler struct {
	svc       *Service
	logger    *slog.Logger
	audit     *audit.Writer
	unitLabel string
}

// NewHandler creates a credits Handler.
func NewHandler(svc *Service, logger *slog.Logger, auditWriter *audit.Writer, unitLabel string) *Handler {
	return &Handler{svc: svc, logger: logger, audit: auditWriter, unitLabel: unitLabel}
}

// Routes returns a chi.Router for mounting under /api/v1, covering the
// caller's own credit summary and history.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/credits", h.handleSummary)
	r.Get("/credits/history", h.handleHistory)
	return r
}

// AdminRoutes returns a chi.Router for mounting under /api/v1/admin,
// covering operator credit grants.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/users/{userID}/credits/grant", h.handleGrant)
	return r
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	summary, err := h.svc.Summary(r.Context(), id.UserID, h.unitLabel)
	if err != nil {
		h.logger.Error("getting credit summary", "error", err, "user_id", id.UserID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get credit summary")
		return
	}

	httpserver.Respond(w, http.StatusOK, summary)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var kinds []string
	if k := r.URL.Query()["kind"]; len(k) > 0 {
		kinds = k
	}

	history, err := h.svc.History(r.Context(), id.UserID, params.Page, params.PageSize, kinds)
	if err != nil {
		h.logger.Error("getting credit history", "error", err, "user_id", id.UserID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get credit history")
		return
	}

	httpserver.Respond(w, http.StatusOK, history)
}

// GrantRequest is the body for an admin credit grant.
type GrantRequest struct {
	Amount    int64      `json:"amount" validate:"required,gt=0"`
	Source    string     `json:"source" validate:"required,oneof=event monthly referral add_on free"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason" validate:"required"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	targetUserID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	var req GrantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tx, err := h.svc.Grant(r.Context(), targetUserID, req.Amount, req.Source, req.ExpiresAt, req.Reason, nil)
	if err != nil {
		var invalid ErrInvalidArgument
		if errors.As(err, &invalid) {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", invalid.Error())
			return
		}
		h.logger.Error("granting credits", "error", err, "user_id", targetUserID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to grant credits")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{
			"amount": req.Amount,
			"source": req.Source,
			"reason": req.Reason,
		})
		h.audit.LogFromRequest(r, "grant", "credits", targetUserID, detail)
	}

	httpserver.Respond(w, http.StatusCreated, tx)
}
