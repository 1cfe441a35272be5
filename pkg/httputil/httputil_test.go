package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmart/plugmart/pkg/contextkeys"
	"github.com/plugmart/plugmart/pkg/errs"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"not found", errs.NotFoundf("plugin %s", "p1"), http.StatusNotFound, "plugin p1"},
		{"forbidden", errs.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"invalid score", errs.ErrInvalidScore, http.StatusBadRequest, "score must be between 1 and 5"},
		{"conflict", errs.ErrConflict, http.StatusConflict, "conflict"},
		{"unauthenticated", errs.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"internal hidden", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.wantBody)
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Pagination
	}{
		{"defaults", "", Pagination{Limit: 20, Offset: 0}},
		{"explicit", "limit=10&offset=30", Pagination{Limit: 10, Offset: 30}},
		{"clamped", "limit=500", Pagination{Limit: 100, Offset: 0}},
		{"negative offset", "offset=-5", Pagination{Limit: 20, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/plugins?"+tt.query, nil)
			got, err := ParsePagination(r, 20, 100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/plugins?limit=abc", nil)
	_, err := ParsePagination(r, 20, 100)
	assert.Error(t, err)
}

func TestParseJSONOrError(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	var dest map[string]string
	ok := ParseJSONOrError(rec, r, &dest)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-123")
	h.ServeHTTP(rec, r)
	assert.Equal(t, "req-123", seen)
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"https://plugmart.io"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://plugmart.io")
	h.ServeHTTP(rec, r)
	assert.Equal(t, "https://plugmart.io", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	h.ServeHTTP(rec, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mk("outer"), mk("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
