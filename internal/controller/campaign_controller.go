// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyggeo/campaign-service/internal/handler"
	"github.com/hyggeo/campaign-service/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		handler.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		handler.BadRequest(w, "invalid body")
		return false
	}
	return true
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if !decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignDetails returns the campaign with live delivery stats.
func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	details, err := c.CampaignService.CampaignStats(r.Context(), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, details)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body service.CampaignInput
	if !decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), id, body)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := c.CampaignService.DeleteCampaign(r.Context(), id); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body struct {
		ScheduledSend time.Time `json:"scheduled_send"`
	}
	if !decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.ScheduleCampaign(r.Context(), id, body.ScheduledSend)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) UnscheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	campaign, err := c.CampaignService.UnscheduleCampaign(r.Context(), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, campaign)
}

// SendCampaign sends synchronously, or publishes a send job when async=true.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := c.CampaignService.EnqueueSend(r.Context(), id); err != nil {
			handler.WriteError(w, r, err)
			return
		}
		handler.WriteJSON(w, http.StatusAccepted, map[string]any{
			"campaign_id": id,
			"status":      "queued",
		})
		return
	}

	campaign, err := c.CampaignService.SendCampaign(r.Context(), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.UserID <= 0 {
		handler.BadRequest(w, "user_id is required")
		return
	}

	msg, err := c.CampaignService.PreviewCampaign(r.Context(), id, body.UserID)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"user_id":     body.UserID,
		"message":     msg,
	})
}

func (c *CampaignController) ResendFailed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	campaign, err := c.CampaignService.ResendFailed(r.Context(), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	logs, err := c.CampaignService.ListDeliveryLogs(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"data": logs})
}
