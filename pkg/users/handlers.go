package users

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/httputil"
)

// Handlers provides HTTP handlers for profile endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates new users handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterProtectedRoutes registers the profile endpoints
func (h *Handlers) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/users/profile", h.Profile).Methods(http.MethodGet)
	r.HandleFunc("/users/profile", h.UpdateProfile).Methods(http.MethodPut)
}

// Profile handles GET /users/profile
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	user, err := h.service.Profile(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateProfile handles PUT /users/profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	var req UpdateProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), identity.UserID, req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}
