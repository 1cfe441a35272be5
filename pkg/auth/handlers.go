package auth

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/plugmart/plugmart/pkg/httputil"
)

// Handlers provides HTTP handlers for account and session endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates new auth handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterPublicRoutes registers the unauthenticated auth endpoints
func (h *Handlers) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
}

// RegisterProtectedRoutes registers endpoints that require authentication
func (h *Handlers) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
}

// Register handles POST /auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteCreated(w, Identity{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// Me handles GET /auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, identity)
}
