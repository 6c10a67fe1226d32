package ledger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestHandleGrant_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "missing amount",
			body:       `{"source":"monthly","reason":"test"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "zero amount",
			body:       `{"amount":0,"source":"monthly","reason":"test"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid source",
			body:       `{"amount":100,"source":"bonus","reason":"test"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing reason",
			body:       `{"amount":100,"source":"monthly"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	h := NewHandler(nil, nil, nil, "credits")
	router := chi.NewRouter()
	router.Mount("/admin", h.AdminRoutes())

	userID := uuid.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/admin/users/" + userID.String() + "/credits/grant"
			r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandleGrant_InvalidUserID(t *testing.T) {
	h := NewHandler(nil, nil, nil, "credits")
	router := chi.NewRouter()
	router.Mount("/admin", h.AdminRoutes())

	r := httptest.NewRequest(http.MethodPost, "/admin/users/not-a-uuid/credits/grant", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSummary_Unauthenticated(t *testing.T) {
	h := NewHandler(nil, nil, nil, "credits")
	router := chi.NewRouter()
	router.Mount("/", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/credits", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleHistory_Unauthenticated(t *testing.T) {
	h := NewHandler(nil, nil, nil, "credits")
	router := chi.NewRouter()
	router.Mount("/", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/credits/history", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
