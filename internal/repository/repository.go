package repository

import (
	"context"
	"time"

	"tradesmart/internal/models"
)

// Repository is the persistence surface the scan pipeline and account
// services depend on. The gorm implementation lives in repository/gorm;
// tests substitute in-memory fakes.
type Repository interface {
	// Opportunities.
	InsertOpportunities(ctx context.Context, items []models.Opportunity) error
	GetOpportunityByID(ctx context.Context, id string) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, params ListOpportunitiesParams) ([]models.Opportunity, error)
	CountOpportunities(ctx context.Context, params ListOpportunitiesParams) (int64, error)
	// UpdateOpportunityStatus applies a one-way transition and reports
	// whether a row in the expected "from" status was actually updated.
	UpdateOpportunityStatus(ctx context.Context, id string, from, to string) (bool, error)
	// DeleteOpportunitiesExpiredBefore trims rows whose expiry passed long
	// enough ago that no screen will ever show them again.
	DeleteOpportunitiesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Scan usage quota. IncrementScanUsage is a single conditional
	// increment: it bumps the (user, day) counter only while the current
	// count is below limit, and reports the resulting count either way.
	IncrementScanUsage(ctx context.Context, userID, day string, limit int) (used int, allowed bool, err error)
	GetScanUsage(ctx context.Context, userID, day string) (int, error)
	DeleteScanUsageBefore(ctx context.Context, day string) (int64, error)

	// Linked accounts.
	UpsertLinkedAccount(ctx context.Context, item *models.LinkedAccount) error
	GetLinkedAccount(ctx context.Context, userID, platform string) (*models.LinkedAccount, error)
	ListLinkedAccountsByUser(ctx context.Context, userID string) ([]models.LinkedAccount, error)
	ListActiveLinkedAccounts(ctx context.Context) ([]models.LinkedAccount, error)
	UpdateLinkedAccountSync(ctx context.Context, id uint64, syncedAt time.Time, syncErr *string) error
	UpdateLinkedAccountTokens(ctx context.Context, id uint64, accessToken, refreshToken string, expiresAt *time.Time) error
	DeactivateLinkedAccount(ctx context.Context, userID, platform string) (bool, error)

	// Alerts.
	ListRealtimeAlertSubscriptions(ctx context.Context) ([]models.AlertSubscription, error)

	// Portfolio.
	InsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error
	UpsertAccountTrades(ctx context.Context, items []models.AccountTrade) error
	ListAccountSnapshots(ctx context.Context, params ListAccountSnapshotsParams) ([]models.AccountSnapshot, error)
	ListAccountTrades(ctx context.Context, params ListAccountTradesParams) ([]models.AccountTrade, error)
}

type ListOpportunitiesParams struct {
	Limit         int
	Offset        int
	Status        *string
	Category      *string
	Subcategory   *string
	UserID        *string
	MinConfidence *int
	OrderBy       string
	Asc           *bool
}

type ListAccountSnapshotsParams struct {
	Limit           int
	Offset          int
	LinkedAccountID *uint64
	Platform        *string
	Since           *time.Time
}

type ListAccountTradesParams struct {
	Limit           int
	Offset          int
	LinkedAccountID *uint64
	Platform        *string
	Since           *time.Time
}
