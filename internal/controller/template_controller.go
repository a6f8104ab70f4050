// internal/controller/template_controller.go
package controller

import (
	"net/http"

	"github.com/hyggeo/campaign-service/internal/handler"
	"github.com/hyggeo/campaign-service/internal/service"
)

type TemplateController struct {
	TemplateService *service.TemplateService
}

func (c *TemplateController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body service.TemplateInput
	if !decode(w, r, &body) {
		return
	}

	tmpl, err := c.TemplateService.CreateTemplate(r.Context(), body)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, tmpl)
}

// ListTemplates returns active templates, filtered by ?category=.
func (c *TemplateController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := c.TemplateService.ListActive(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"data": templates})
}

func (c *TemplateController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	tmpl, err := c.TemplateService.GetTemplate(r.Context(), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, tmpl)
}

func (c *TemplateController) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body service.TemplateInput
	if !decode(w, r, &body) {
		return
	}

	tmpl, err := c.TemplateService.UpdateTemplate(r.Context(), id, body)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, tmpl)
}

func (c *TemplateController) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := c.TemplateService.DeleteTemplate(r.Context(), id); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
