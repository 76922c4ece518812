package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesmart/internal/platform"
	"tradesmart/internal/repository"
	"tradesmart/internal/service"
)

// AccountsHandler serves linked-account lifecycle and portfolio reads.
type AccountsHandler struct {
	Service *service.AccountService
	Repo    repository.Repository
	Logger  *zap.Logger
}

func (h *AccountsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/accounts")
	group.GET("", h.list)
	group.POST("/connect", h.connect)
	group.POST("/:platform/sync", h.sync)
	group.DELETE("/:platform", h.disconnect)
	group.GET("/:platform/positions", h.positions)
	group.GET("/snapshots", h.snapshots)
	group.GET("/trades", h.trades)
}

// userID comes from the gateway's auth header until the gateway handles
// path-level identity itself.
func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-User-Id"))
}

type connectRequest struct {
	Platform  string `json:"platform"`
	AuthCode  string `json:"authCode"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

func (h *AccountsHandler) connect(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	uid := userID(c)
	if uid == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Platform == "" {
		Error(c, http.StatusBadRequest, "platform is required", nil)
		return
	}

	account, err := h.Service.Connect(c.Request.Context(), uid, req.Platform, service.ConnectInput{
		AuthCode:  req.AuthCode,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
	})
	if err != nil {
		h.writeAccountError(c, err)
		return
	}
	Ok(c, account, nil)
}

func (h *AccountsHandler) sync(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	uid := userID(c)
	if uid == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	if err := h.Service.SyncUser(c.Request.Context(), uid, c.Param("platform")); err != nil {
		h.writeAccountError(c, err)
		return
	}
	Ok(c, gin.H{"synced_at": time.Now().UTC()}, nil)
}

func (h *AccountsHandler) disconnect(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	uid := userID(c)
	if uid == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	if err := h.Service.Disconnect(c.Request.Context(), uid, c.Param("platform")); err != nil {
		h.writeAccountError(c, err)
		return
	}
	Ok(c, gin.H{"disconnected": true}, nil)
}

func (h *AccountsHandler) list(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	uid := userID(c)
	if uid == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	accounts, err := h.Service.ListAccounts(c.Request.Context(), uid)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to list accounts", nil)
		return
	}
	Ok(c, accounts, nil)
}

func (h *AccountsHandler) positions(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	uid := userID(c)
	if uid == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	positions, err := h.Service.Positions(c.Request.Context(), uid, c.Param("platform"))
	if err != nil {
		h.writeAccountError(c, err)
		return
	}
	Ok(c, positions, nil)
}

func (h *AccountsHandler) snapshots(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	if userID(c) == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	params := repository.ListAccountSnapshotsParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		Platform: stringQueryPtr(c, "platform"),
	}
	if id := intQueryPtr(c, "account_id"); id != nil && *id > 0 {
		value := uint64(*id)
		params.LinkedAccountID = &value
	}
	items, err := h.Repo.ListAccountSnapshots(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to list snapshots", nil)
		return
	}
	Ok(c, items, nil)
}

func (h *AccountsHandler) trades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	if userID(c) == "" {
		Error(c, http.StatusUnauthorized, "missing user identity", nil)
		return
	}
	params := repository.ListAccountTradesParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		Platform: stringQueryPtr(c, "platform"),
	}
	if id := intQueryPtr(c, "account_id"); id != nil && *id > 0 {
		value := uint64(*id)
		params.LinkedAccountID = &value
	}
	items, err := h.Repo.ListAccountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to list trades", nil)
		return
	}
	Ok(c, items, nil)
}

func (h *AccountsHandler) writeAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		Error(c, http.StatusNotFound, "linked account not found", nil)
	case errors.Is(err, service.ErrBadCredentials):
		Error(c, http.StatusUnprocessableEntity, "credentials rejected by platform", nil)
	case platform.IsUnknownPlatform(err):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case platform.IsRateLimited(err):
		Error(c, http.StatusTooManyRequests, "platform rate limit hit, try again later", nil)
	case platform.IsAuthentication(err):
		Error(c, http.StatusUnprocessableEntity, "stored credentials no longer valid, reconnect the platform", nil)
	default:
		if h.Logger != nil {
			h.Logger.Warn("account operation failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, "platform request failed", nil)
	}
}
