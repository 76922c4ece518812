package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesmart/internal/models"
	"tradesmart/internal/scan"
)

// ScannerHandler exposes the scan-run endpoint. Its response shape is part
// of the public API contract and deliberately bypasses the shared envelope.
type ScannerHandler struct {
	Orchestrator *scan.Orchestrator
	Logger       *zap.Logger
}

func (h *ScannerHandler) Register(r *gin.Engine) {
	group := r.Group("/api/scanner")
	group.POST("/run", h.run)
}

type runRequest struct {
	ScanType string `json:"scanType"`
	UserID   string `json:"userId"`
	UserTier string `json:"userTier"`
}

type runResponse struct {
	Success         bool                 `json:"success"`
	ScanType        string               `json:"scanType"`
	Timestamp       string               `json:"timestamp"`
	Opportunities   []opportunityPayload `json:"opportunities"`
	Count           int                  `json:"count"`
	AIAnalysisCount int                  `json:"aiAnalysisCount"`
	AlertsSent      int                  `json:"alertsSent"`
	Errors          []string             `json:"errors,omitempty"`
	Message         string               `json:"message"`
}

func (h *ScannerHandler) run(c *gin.Context) {
	if h.Orchestrator == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": "scanner unavailable"})
		return
	}

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid scanType. Must be one of: arbitrage, value_bets, matched_betting, betting, stocks, crypto, all",
		})
		return
	}
	if req.ScanType == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid scanType. Must be one of: arbitrage, value_bets, matched_betting, betting, stocks, crypto, all",
		})
		return
	}

	result, err := h.Orchestrator.Run(c.Request.Context(), scan.Request{
		ScanType: req.ScanType,
		UserID:   req.UserID,
		UserTier: req.UserTier,
	})
	if err != nil {
		h.writeRunError(c, err)
		return
	}

	payload := make([]opportunityPayload, 0, len(result.Opportunities))
	now := time.Now().UTC()
	for _, opp := range result.Opportunities {
		payload = append(payload, toOpportunityPayload(opp, now))
	}

	message := "Scan completed"
	if len(result.Errors) > 0 {
		message = "Scan completed with errors"
	}
	c.JSON(http.StatusOK, runResponse{
		Success:         true,
		ScanType:        result.ScanType,
		Timestamp:       now.Format(time.RFC3339),
		Opportunities:   payload,
		Count:           len(payload),
		AIAnalysisCount: result.AIAnalysisCount,
		AlertsSent:      result.AlertsSent,
		Errors:          result.Errors,
		Message:         message,
	})
}

func (h *ScannerHandler) writeRunError(c *gin.Context, err error) {
	var quota *scan.QuotaExceededError
	switch {
	case errors.Is(err, scan.ErrInvalidScanType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid scanType. Must be one of: arbitrage, value_bets, matched_betting, betting, stocks, crypto, all",
		})
	case errors.Is(err, scan.ErrFreeTier):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Scanning requires a paid subscription. Upgrade to run scans.",
			"code":  "TIER_LIMIT_FREE",
		})
	case errors.As(err, &quota):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Daily scan limit reached for your plan.",
			"code":  "TIER_LIMIT_REACHED",
			"used":  quota.Used,
			"limit": quota.Limit,
		})
	default:
		if h.Logger != nil {
			h.Logger.Error("scan run failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}
}

// opportunityPayload is the public wire shape of one opportunity. Status is
// the effective one: open records past expiry read as expired.
type opportunityPayload struct {
	ID                string         `json:"id"`
	UserID            *string        `json:"user_id,omitempty"`
	Category          string         `json:"category"`
	Subcategory       string         `json:"subcategory,omitempty"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	ConfidenceScore   int            `json:"confidence_score"`
	ExpectedValue     string         `json:"expected_value"`
	ExpectedValueUnit string         `json:"expected_value_unit"`
	Data              map[string]any `json:"data,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at"`
	Status            string         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
}

func toOpportunityPayload(opp models.Opportunity, now time.Time) opportunityPayload {
	payload := opportunityPayload{
		ID:                opp.ID,
		UserID:            opp.UserID,
		Category:          opp.Category,
		Subcategory:       opp.Subcategory,
		Title:             opp.Title,
		Description:       opp.Description,
		ConfidenceScore:   opp.ConfidenceScore,
		ExpectedValue:     opp.ExpectedValue.String(),
		ExpectedValueUnit: opp.ExpectedValueUnit,
		ExpiresAt:         opp.ExpiresAt,
		Status:            opp.EffectiveStatus(now),
		CreatedAt:         opp.CreatedAt,
	}
	if len(opp.Data) > 0 {
		data := map[string]any{}
		if err := json.Unmarshal(opp.Data, &data); err == nil {
			payload.Data = data
		}
	}
	return payload
}
