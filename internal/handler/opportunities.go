package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesmart/internal/models"
	"tradesmart/internal/repository"
)

// OpportunitiesHandler serves the stored opportunity feed and the one-way
// status transitions users can apply to it.
type OpportunitiesHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *OpportunitiesHandler) Register(r *gin.Engine) {
	group := r.Group("/api/opportunities")
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.PATCH("/:id/status", h.updateStatus)
}

func (h *OpportunitiesHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	params := repository.ListOpportunitiesParams{
		Limit:         intQuery(c, "limit", 50),
		Offset:        intQuery(c, "offset", 0),
		Status:        stringQueryPtr(c, "status"),
		Category:      stringQueryPtr(c, "category"),
		Subcategory:   stringQueryPtr(c, "subcategory"),
		UserID:        stringQueryPtr(c, "user_id"),
		MinConfidence: intQueryPtr(c, "min_confidence"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"created_at":       "created_at",
			"confidence_score": "confidence_score",
			"expected_value":   "expected_value",
			"expires_at":       "expires_at",
		}),
		Asc: boolQueryPtr(c, "asc"),
	}

	items, err := h.Repo.ListOpportunities(c.Request.Context(), params)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list opportunities failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "failed to list opportunities", nil)
		return
	}
	total, err := h.Repo.CountOpportunities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to count opportunities", nil)
		return
	}

	now := time.Now().UTC()
	payload := make([]opportunityPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, toOpportunityPayload(item, now))
	}
	Ok(c, payload, map[string]any{
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func (h *OpportunitiesHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	item, err := h.Repo.GetOpportunityByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to load opportunity", nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}
	Ok(c, toOpportunityPayload(*item, time.Now().UTC()), nil)
}

type statusRequest struct {
	Status string `json:"status"`
}

// updateStatus applies open -> taken or open -> dismissed. Expired records
// cannot transition: expiry wins over a late user action.
func (h *OpportunitiesHandler) updateStatus(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	target := strings.ToLower(strings.TrimSpace(req.Status))
	if target != models.StatusTaken && target != models.StatusDismissed {
		Error(c, http.StatusBadRequest, "status must be taken or dismissed", nil)
		return
	}

	id := c.Param("id")
	item, err := h.Repo.GetOpportunityByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to load opportunity", nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}
	now := time.Now().UTC()
	if item.EffectiveStatus(now) != models.StatusOpen {
		Error(c, http.StatusConflict, "opportunity is not open", map[string]any{
			"status": item.EffectiveStatus(now),
		})
		return
	}

	updated, err := h.Repo.UpdateOpportunityStatus(c.Request.Context(), id, models.StatusOpen, target)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to update status", nil)
		return
	}
	if !updated {
		Error(c, http.StatusConflict, "opportunity is not open", nil)
		return
	}
	item.Status = target
	Ok(c, toOpportunityPayload(*item, now), nil)
}
