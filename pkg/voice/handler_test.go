package voice

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/duskvoice/narrator/internal/auth"
)

func TestHandleCreate_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "missing sample_blob_key",
			body:       `{"sample_bytes":1000,"provider":"A"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "zero sample_bytes",
			body:       `{"sample_blob_key":"k","sample_bytes":0,"provider":"A"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid provider",
			body:       `{"sample_blob_key":"k","sample_bytes":1000,"provider":"C"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/voices", h.Routes())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/voices", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			r = r.WithContext(auth.NewContext(r.Context(), &auth.Identity{UserID: uuid.New(), Role: auth.RoleUser}))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandleCreate_Unauthenticated(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/voices", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/voices", strings.NewReader(`{"sample_blob_key":"k","sample_bytes":1000,"provider":"A"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleGet_InvalidID(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/voices", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/voices/not-a-uuid", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code) // auth check runs before ID parse
}
