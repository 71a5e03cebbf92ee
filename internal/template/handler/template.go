package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sealflow/sealflow-backend/internal/template/service"
	"github.com/sealflow/sealflow-backend/pkg/actor"
	"github.com/sealflow/sealflow-backend/pkg/httputil"
	"github.com/sealflow/sealflow-backend/pkg/logger"
)

// TemplateHandler handles contract template endpoints
type TemplateHandler struct {
	service *service.TemplateService
	logger  *logger.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(svc *service.TemplateService, log *logger.Logger) *TemplateHandler {
	return &TemplateHandler{
		service: svc,
		logger:  log,
	}
}

func actorID(r *http.Request) string {
	a := actor.FromContext(r.Context())
	if a == nil {
		a = actor.System()
	}
	return a.ID
}

// RegisterRoutes registers template routes on the router
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/versions", h.CreateVersion)
			r.Post("/approve", h.Approve)
			r.Post("/publish", h.Publish)
			r.Post("/clone", h.Clone)
		})
	})
}

// List lists templates with optional status and tag filters
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	status := r.URL.Query().Get("status")
	tag := r.URL.Query().Get("tag")

	templates, total, err := h.service.List(r.Context(), page, perPage, status, tag)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, templates, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a template by ID
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tmpl, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tmpl)
}

// Create creates a new draft template
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	tmpl, err := h.service.Create(r.Context(), &req, actorID(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, tmpl)
}

// Update patches an unused template version in place
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.UpdateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	tmpl, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tmpl)
}

// CreateVersion creates a new version of an existing template
func (h *TemplateHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.UpdateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	tmpl, err := h.service.CreateNewVersion(r.Context(), id, &req, actorID(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, tmpl)
}

// Approve marks a template version as approved
func (h *TemplateHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tmpl, err := h.service.Approve(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tmpl)
}

// Publish activates an approved template version
func (h *TemplateHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tmpl, err := h.service.Publish(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tmpl)
}

// Clone copies a template into a fresh draft under a new name
func (h *TemplateHandler) Clone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Name string `json:"name" validate:"required,min=1,max=200"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	tmpl, err := h.service.Clone(r.Context(), id, req.Name, actorID(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, tmpl)
}

// Delete archives a template, or hard-deletes with ?hard=true when unused
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.service.Delete(r.Context(), id, hard); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
