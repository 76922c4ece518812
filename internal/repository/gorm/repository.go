package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesmart/internal/models"
	"tradesmart/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- opportunities ----------------------------------------------------------

func (s *Store) InsertOpportunities(ctx context.Context, items []models.Opportunity) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) GetOpportunityByID(ctx context.Context, id string) (*models.Opportunity, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Opportunity
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) ([]models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.opportunityQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.Opportunity
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.opportunityQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) opportunityQuery(ctx context.Context, params repository.ListOpportunitiesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Opportunity{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.Subcategory != nil && strings.TrimSpace(*params.Subcategory) != "" {
		query = query.Where("subcategory = ?", strings.TrimSpace(*params.Subcategory))
	}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		// Global opportunities (null user) are visible to everyone.
		query = query.Where("user_id IS NULL OR user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.MinConfidence != nil {
		query = query.Where("confidence_score >= ?", *params.MinConfidence)
	}
	return query
}

func (s *Store) UpdateOpportunityStatus(ctx context.Context, id string, from, to string) (bool, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) DeleteOpportunitiesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", cutoff).
		Delete(&models.Opportunity{})
	return res.RowsAffected, res.Error
}

// --- scan usage -------------------------------------------------------------

type usageRow struct {
	Count int
}

func (s *Store) IncrementScanUsage(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	if s == nil || s.db == nil {
		return 0, true, nil
	}
	now := time.Now().UTC()
	var rows []usageRow
	// Conditional upsert: the WHERE on the conflict branch keeps the counter
	// from ever exceeding the limit, so concurrent requests cannot
	// double-spend the quota.
	err := s.db.WithContext(ctx).Raw(`
		INSERT INTO scan_usages (user_id, day, count, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (user_id, day)
		DO UPDATE SET count = scan_usages.count + 1, updated_at = ?
		WHERE scan_usages.count < ?
		RETURNING count`,
		userID, day, now, now, now, limit,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) > 0 {
		return rows[0].Count, true, nil
	}
	// Nothing updated: the counter is already at or above the limit.
	used, err := s.GetScanUsage(ctx, userID, day)
	if err != nil {
		return 0, false, err
	}
	return used, false, nil
}

func (s *Store) GetScanUsage(ctx context.Context, userID, day string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var item models.ScanUsage
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("day = ?", day).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return item.Count, nil
}

func (s *Store) DeleteScanUsageBefore(ctx context.Context, day string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("day < ?", day).
		Delete(&models.ScanUsage{})
	return res.RowsAffected, res.Error
}

// --- linked accounts --------------------------------------------------------

func (s *Store) UpsertLinkedAccount(ctx context.Context, item *models.LinkedAccount) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token",
			"refresh_token",
			"token_expires_at",
			"api_key",
			"api_secret",
			"is_active",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetLinkedAccount(ctx context.Context, userID, platform string) (*models.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("platform = ?", platform).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListLinkedAccountsByUser(ctx context.Context, userID string) ([]models.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("platform asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveLinkedAccounts(ctx context.Context) ([]models.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LinkedAccount
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateLinkedAccountSync(ctx context.Context, id uint64, syncedAt time.Time, syncErr *string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.LinkedAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_sync_at": syncedAt,
			"sync_error":   syncErr,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (s *Store) UpdateLinkedAccountTokens(ctx context.Context, id uint64, accessToken, refreshToken string, expiresAt *time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.LinkedAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (s *Store) DeactivateLinkedAccount(ctx context.Context, userID, platform string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.LinkedAccount{}).
		Where("user_id = ?", userID).
		Where("platform = ?", platform).
		Where("is_active = ?", true).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// --- alerts -----------------------------------------------------------------

func (s *Store) ListRealtimeAlertSubscriptions(ctx context.Context) ([]models.AlertSubscription, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.AlertSubscription
	err := s.db.WithContext(ctx).
		Where("realtime = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- portfolio --------------------------------------------------------------

func (s *Store) InsertAccountSnapshot(ctx context.Context, item *models.AccountSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpsertAccountTrades(ctx context.Context, items []models.AccountTrade) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "linked_account_id"}, {Name: "external_id"}},
		DoNothing: true,
	}).CreateInBatches(items, 200).Error
}

func (s *Store) ListAccountSnapshots(ctx context.Context, params repository.ListAccountSnapshotsParams) ([]models.AccountSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.AccountSnapshot{})
	if params.LinkedAccountID != nil {
		query = query.Where("linked_account_id = ?", *params.LinkedAccountID)
	}
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("captured_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.AccountSnapshot
	if err := query.Order("captured_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListAccountTrades(ctx context.Context, params repository.ListAccountTradesParams) ([]models.AccountTrade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.AccountTrade{})
	if params.LinkedAccountID != nil {
		query = query.Where("linked_account_id = ?", *params.LinkedAccountID)
	}
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("executed_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.AccountTrade
	if err := query.Order("executed_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
