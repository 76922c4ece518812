package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tradesmart/internal/config"
	"tradesmart/internal/models"
	"tradesmart/internal/platform"
	"tradesmart/internal/repository"
)

// ErrAccountNotFound is returned when a user has no active link for the
// requested platform.
var ErrAccountNotFound = errors.New("linked account not found")

// ErrBadCredentials rejects a connect attempt whose credentials failed the
// verification call.
var ErrBadCredentials = errors.New("credentials rejected by platform")

// ConnectInput carries whichever credential material the platform needs.
type ConnectInput struct {
	AuthCode  string
	APIKey    string
	APISecret string
}

// AccountService owns the linked-account lifecycle: connect, periodic sync
// into portfolio snapshots and trades, and disconnect.
type AccountService struct {
	repo       repository.Repository
	factory    *platform.Factory
	betfairCfg config.BetfairConfig
	httpClient *http.Client
	log        *zap.Logger
}

func NewAccountService(repo repository.Repository, factory *platform.Factory, betfairCfg config.BetfairConfig, httpClient *http.Client, log *zap.Logger) *AccountService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		repo:       repo,
		factory:    factory,
		betfairCfg: betfairCfg,
		httpClient: httpClient,
		log:        log,
	}
}

// Connect verifies the supplied credentials against the platform and stores
// the link. Reconnecting an existing platform replaces its credentials.
func (s *AccountService) Connect(ctx context.Context, userID, platformName string, input ConnectInput) (*models.LinkedAccount, error) {
	account := &models.LinkedAccount{
		UserID:   userID,
		Platform: platformName,
		IsActive: true,
	}

	var creds platform.Credentials
	switch platformName {
	case platform.Betfair:
		if input.AuthCode == "" {
			return nil, fmt.Errorf("%w: missing authorization code", ErrBadCredentials)
		}
		token, err := platform.ExchangeAuthCode(ctx, s.httpClient, s.betfairCfg, input.AuthCode)
		if err != nil {
			if platform.IsAuthentication(err) {
				return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
			}
			return nil, err
		}
		creds = platform.Credentials{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
		access := ProtectCredential("access_token", token.AccessToken)
		refresh := ProtectCredential("refresh_token", token.RefreshToken)
		expires := token.ExpiresAt
		account.AccessToken = &access
		account.RefreshToken = &refresh
		account.TokenExpiresAt = &expires
	case platform.Kraken, platform.IBKR:
		if input.APIKey == "" || input.APISecret == "" {
			return nil, fmt.Errorf("%w: missing api key pair", ErrBadCredentials)
		}
		creds = platform.Credentials{APIKey: input.APIKey, APISecret: input.APISecret}
		key := ProtectCredential("api_key", input.APIKey)
		secret := ProtectCredential("api_secret", input.APISecret)
		account.APIKey = &key
		account.APISecret = &secret
	default:
		return nil, &platform.UnknownPlatformError{Platform: platformName}
	}

	client, err := s.factory.New(platformName, creds)
	if err != nil {
		return nil, err
	}
	// A balance call proves the credentials work before anything is stored.
	if _, err := client.GetBalance(ctx); err != nil {
		if platform.IsAuthentication(err) {
			return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
		}
		return nil, err
	}

	if err := s.repo.UpsertLinkedAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("store linked account: %w", err)
	}
	s.log.Info("platform connected",
		zap.String("user_id", userID),
		zap.String("platform", platformName))
	return account, nil
}

// Disconnect deactivates the link. Credentials stay on the row so a
// reconnect audit trail survives; they are replaced on the next connect.
func (s *AccountService) Disconnect(ctx context.Context, userID, platformName string) error {
	ok, err := s.repo.DeactivateLinkedAccount(ctx, userID, platformName)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountNotFound
	}
	s.log.Info("platform disconnected",
		zap.String("user_id", userID),
		zap.String("platform", platformName))
	return nil
}

func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]models.LinkedAccount, error) {
	return s.repo.ListLinkedAccountsByUser(ctx, userID)
}

// SyncUser syncs one user's link to one platform.
func (s *AccountService) SyncUser(ctx context.Context, userID, platformName string) error {
	account, err := s.repo.GetLinkedAccount(ctx, userID, platformName)
	if err != nil {
		return err
	}
	if account == nil || !account.IsActive {
		return ErrAccountNotFound
	}
	return s.Sync(ctx, account)
}

// SyncAll walks every active link; one account failing never stops the rest.
func (s *AccountService) SyncAll(ctx context.Context) {
	accounts, err := s.repo.ListActiveLinkedAccounts(ctx)
	if err != nil {
		s.log.Error("list active accounts failed", zap.Error(err))
		return
	}
	for i := range accounts {
		if err := s.Sync(ctx, &accounts[i]); err != nil {
			s.log.Warn("account sync failed",
				zap.Uint64("account_id", accounts[i].ID),
				zap.String("platform", accounts[i].Platform),
				zap.Error(err))
		}
	}
}

// Sync pulls a balance snapshot and recent trades for one linked account.
// The sync outcome, success or failure, is recorded on the row either way.
func (s *AccountService) Sync(ctx context.Context, account *models.LinkedAccount) error {
	err := s.sync(ctx, account)
	syncedAt := time.Now().UTC()
	var syncErr *string
	if err != nil {
		msg := err.Error()
		syncErr = &msg
	}
	if updateErr := s.repo.UpdateLinkedAccountSync(ctx, account.ID, syncedAt, syncErr); updateErr != nil {
		s.log.Error("record sync state failed", zap.Uint64("account_id", account.ID), zap.Error(updateErr))
	}
	return err
}

func (s *AccountService) sync(ctx context.Context, account *models.LinkedAccount) error {
	client, err := s.clientFor(account)
	if err != nil {
		return err
	}

	balance, err := client.GetBalance(ctx)
	if platform.IsAuthentication(err) && account.Platform == platform.Betfair {
		// Betfair sessions expire; rotate the token once and retry.
		client, err = s.refreshBetfair(ctx, account)
		if err != nil {
			return err
		}
		balance, err = client.GetBalance(ctx)
	}
	if err != nil {
		return err
	}

	snapshot := &models.AccountSnapshot{
		LinkedAccountID: account.ID,
		Platform:        account.Platform,
		Currency:        balance.Currency,
		Available:       balance.Available,
		Exposure:        balance.Exposure,
		Total:           balance.Total,
		CapturedAt:      time.Now().UTC(),
	}
	if err := s.repo.InsertAccountSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	since := time.Now().Add(-platform.DefaultTradeLookback)
	if account.LastSyncAt != nil {
		since = *account.LastSyncAt
	}
	trades, err := client.GetTrades(ctx, since)
	if err != nil {
		if platform.IsUnsupported(err) {
			return nil
		}
		return err
	}
	if len(trades) == 0 {
		return nil
	}

	rows := make([]models.AccountTrade, 0, len(trades))
	for _, trade := range trades {
		rows = append(rows, models.AccountTrade{
			LinkedAccountID: account.ID,
			ExternalID:      trade.ExternalID,
			Platform:        account.Platform,
			Market:          trade.Market,
			Side:            trade.Side,
			Size:            trade.Size,
			Price:           trade.Price,
			Fee:             trade.Fee,
			ProfitLoss:      trade.ProfitLoss,
			ExecutedAt:      trade.ExecutedAt,
		})
	}
	if err := s.repo.UpsertAccountTrades(ctx, rows); err != nil {
		return fmt.Errorf("store trades: %w", err)
	}
	return nil
}

// Positions returns open positions for one linked account. Platforms that
// cannot expose positions yield an empty slice, not an error.
func (s *AccountService) Positions(ctx context.Context, userID, platformName string) ([]platform.Position, error) {
	account, err := s.repo.GetLinkedAccount(ctx, userID, platformName)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.IsActive {
		return nil, ErrAccountNotFound
	}
	client, err := s.clientFor(account)
	if err != nil {
		return nil, err
	}
	positions, err := client.GetPositions(ctx)
	if platform.IsUnsupported(err) {
		return []platform.Position{}, nil
	}
	return positions, err
}

func (s *AccountService) clientFor(account *models.LinkedAccount) (platform.Client, error) {
	creds := platform.Credentials{}
	if account.AccessToken != nil {
		creds.AccessToken = RevealCredential("access_token", *account.AccessToken)
	}
	if account.RefreshToken != nil {
		creds.RefreshToken = RevealCredential("refresh_token", *account.RefreshToken)
	}
	if account.APIKey != nil {
		creds.APIKey = RevealCredential("api_key", *account.APIKey)
	}
	if account.APISecret != nil {
		creds.APISecret = RevealCredential("api_secret", *account.APISecret)
	}
	return s.factory.New(account.Platform, creds)
}

func (s *AccountService) refreshBetfair(ctx context.Context, account *models.LinkedAccount) (platform.Client, error) {
	if account.RefreshToken == nil {
		return nil, fmt.Errorf("no refresh token on account %d", account.ID)
	}
	refresh := RevealCredential("refresh_token", *account.RefreshToken)
	token, err := platform.RefreshAccessToken(ctx, s.httpClient, s.betfairCfg, refresh)
	if err != nil {
		return nil, fmt.Errorf("refresh betfair token: %w", err)
	}

	access := ProtectCredential("access_token", token.AccessToken)
	newRefresh := ProtectCredential("refresh_token", token.RefreshToken)
	expires := token.ExpiresAt
	if err := s.repo.UpdateLinkedAccountTokens(ctx, account.ID, access, newRefresh, &expires); err != nil {
		s.log.Error("persist rotated tokens failed", zap.Uint64("account_id", account.ID), zap.Error(err))
	}
	account.AccessToken = &access
	account.RefreshToken = &newRefresh
	account.TokenExpiresAt = &expires

	return s.factory.New(account.Platform, platform.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})
}
