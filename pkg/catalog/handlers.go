package catalog

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/plugmart/plugmart/pkg/auth"
	"github.com/plugmart/plugmart/pkg/httputil"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger archives spill to temp files
const maxUploadMemory = 8 << 20

// Handlers provides HTTP handlers for catalog endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates new catalog handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterPublicRoutes registers the read-only catalog endpoints
func (h *Handlers) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/plugins", h.List).Methods(http.MethodGet)
	r.HandleFunc("/plugins/featured", h.Featured).Methods(http.MethodGet)
	r.HandleFunc("/plugins/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/plugins/{id}/versions", h.Versions).Methods(http.MethodGet)
}

// RegisterProtectedRoutes registers endpoints that require authentication
func (h *Handlers) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/plugins", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/plugins/my-plugins", h.MyPlugins).Methods(http.MethodGet)
	r.HandleFunc("/plugins/{id}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/plugins/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/plugins/{id}/versions", h.AddVersion).Methods(http.MethodPost)
}

// List handles GET /plugins
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePagination(r, 20, 100)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	opts := ListOptions{
		Category: httputil.ParseQueryString(r, "category", ""),
		Search:   httputil.ParseQueryString(r, "search", ""),
		Sort:     httputil.ParseQueryString(r, "sort", ""),
		Limit:    page.Limit,
		Offset:   page.Offset,
	}

	plugins, err := h.service.List(r.Context(), opts)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"plugins": plugins})
}

// Featured handles GET /plugins/featured
func (h *Handlers) Featured(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 6)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	plugins, err := h.service.Featured(r.Context(), limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"plugins": plugins})
}

// Get handles GET /plugins/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	plugin, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, plugin)
}

// Versions handles GET /plugins/{id}/versions
func (h *Handlers) Versions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	versions, err := h.service.Versions(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"versions": versions})
}

// MyPlugins handles GET /plugins/my-plugins
func (h *Handlers) MyPlugins(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	plugins, err := h.service.ListByAuthor(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"plugins": plugins})
}

// Create handles POST /plugins. Expects a multipart form with the
// listing metadata and the archive under "file".
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.WriteValidationError(w, "invalid multipart form: "+err.Error())
		return
	}

	priceCents := int64(0)
	if v := r.FormValue("price_cents"); v != "" {
		priceCents, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "invalid price_cents")
			return
		}
	}

	req := CreatePluginRequest{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Version:     r.FormValue("version"),
		PriceCents:  priceCents,
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationError(w, "archive file is required")
		return
	}
	defer file.Close()

	plugin, err := h.service.Create(r.Context(), identity, req, file)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, plugin)
}

// AddVersion handles POST /plugins/{id}/versions
func (h *Handlers) AddVersion(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.WriteValidationError(w, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationError(w, "archive file is required")
		return
	}
	defer file.Close()

	version, err := h.service.AddVersion(r.Context(), identity, id, r.FormValue("version"), file)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, version)
}

// Update handles PUT /plugins/{id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdatePluginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	plugin, err := h.service.Update(r.Context(), identity, id, req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, plugin)
}

// Delete handles DELETE /plugins/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, id); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
