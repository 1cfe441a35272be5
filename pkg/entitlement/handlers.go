package entitlement

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/download"
	"github.com/plugmart/plugmart/pkg/errs"
	"github.com/plugmart/plugmart/pkg/httputil"
	"github.com/plugmart/plugmart/pkg/ratings"
)

// Handlers provides HTTP handlers for entitlement endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates new entitlement handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterPublicRoutes registers endpoints that need no authentication.
// Download redemption is public because the token itself is the
// credential.
func (h *Handlers) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/plugins/{id}/ratings", h.RatingAggregate).Methods(http.MethodGet)
	r.HandleFunc("/downloads/{token}", h.RedeemDownload).Methods(http.MethodGet)
}

// RegisterProtectedRoutes registers endpoints that require authentication
func (h *Handlers) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/plugins/{id}/purchase", h.Purchase).Methods(http.MethodPost)
	r.HandleFunc("/plugins/{id}/download", h.Download).Methods(http.MethodGet)
	r.HandleFunc("/plugins/{id}/download", h.AuthorizeDownload).Methods(http.MethodPost)
	r.HandleFunc("/plugins/{id}/rate", h.Rate).Methods(http.MethodPost)
	r.HandleFunc("/plugins/{id}/rating", h.UserRating).Methods(http.MethodGet)
	r.HandleFunc("/users/purchases", h.Purchases).Methods(http.MethodGet)
}

// Purchase handles POST /plugins/{id}/purchase
func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	purchase, err := h.service.Purchase(r.Context(), identity.UserID, id)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, purchase)
}

// Purchases handles GET /users/purchases
func (h *Handlers) Purchases(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	history, err := h.service.Purchases(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"purchases": history})
}

// AuthorizeDownload handles POST /plugins/{id}/download
func (h *Handlers) AuthorizeDownload(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	version := httputil.ParseQueryString(r, "version", "")
	token, err := h.service.AuthorizeDownload(r.Context(), identity.UserID, id, version)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"token":      token,
		"url":        "/api/downloads/" + token,
		"expires_in": 300,
	})
}

// Download handles GET /plugins/{id}/download. It authorizes and
// streams the archive in one round trip for clients that do not use the
// token handoff.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	version := httputil.ParseQueryString(r, "version", "")
	token, err := h.service.AuthorizeDownload(r.Context(), identity.UserID, id, version)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	grant, body, err := h.service.RedeemDownload(r.Context(), token)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	defer body.Close()
	streamArchive(w, grant, body)
}

// RedeemDownload handles GET /downloads/{token}
func (h *Handlers) RedeemDownload(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	grant, body, err := h.service.RedeemDownload(r.Context(), token)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	defer body.Close()
	streamArchive(w, grant, body)
}

func streamArchive(w http.ResponseWriter, grant *download.Grant, body io.Reader) {
	filename := fmt.Sprintf("%s-%s.jar", grant.PluginName, grant.Version)
	w.Header().Set("Content-Type", "application/java-archive")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Checksum-Sha256", grant.Checksum)
	// Headers are already written if the copy fails midway; nothing
	// recoverable here
	_, _ = io.Copy(w, body)
}

// Rate handles POST /plugins/{id}/rate
func (h *Handlers) Rate(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req ratings.SubmitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	agg, err := h.service.Rate(r.Context(), identity.UserID, id, req.Score, req.Comment)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, agg)
}

// RatingAggregate handles GET /plugins/{id}/ratings
func (h *Handlers) RatingAggregate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	agg, err := h.service.RatingAggregate(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, agg)
}

// UserRating handles GET /plugins/{id}/rating
func (h *Handlers) UserRating(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	rating, err := h.service.UserRating(r.Context(), identity.UserID, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			httputil.WriteSuccess(w, map[string]interface{}{"rated": false})
			return
		}
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"rated": true, "rating": rating})
}
