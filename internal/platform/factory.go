package platform

import (
	"net/http"

	"go.uber.org/zap"

	"tradesmart/internal/config"
)

// Factory builds platform clients from stored credentials. One factory is
// shared process-wide so every client for the same platform goes through the
// same rate limiter and circuit breaker; clients themselves are cheap
// per-account values.
type Factory struct {
	cfg config.PlatformsConfig
	log *zap.Logger

	betfair *guardedDoer
	kraken  *guardedDoer
	ibkr    *guardedDoer
}

func NewFactory(cfg config.PlatformsConfig, httpClient *http.Client, log *zap.Logger) *Factory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Factory{
		cfg: cfg,
		log: log,
		// Kraken throttles private endpoints harder than the other two.
		betfair: newGuardedDoer(Betfair, httpClient, 5),
		kraken:  newGuardedDoer(Kraken, httpClient, 3),
		ibkr:    newGuardedDoer(IBKR, httpClient, 5),
	}
}

func (f *Factory) New(platform string, creds Credentials) (Client, error) {
	switch platform {
	case Betfair:
		return newBetfairClient(f.cfg.Betfair, creds, f.betfair), nil
	case Kraken:
		return newKrakenClient(f.cfg.Kraken, creds, f.kraken, f.log), nil
	case IBKR:
		return newIBKRClient(f.cfg.IBKR, creds, f.ibkr), nil
	default:
		return nil, &UnknownPlatformError{Platform: platform}
	}
}
