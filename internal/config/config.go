package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	OddsFeed   OddsFeedConfig   `mapstructure:"odds_feed"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	CryptoData CryptoDataConfig `mapstructure:"crypto_data"`

	Scan      ScanConfig      `mapstructure:"scan"`
	AI        AIConfig        `mapstructure:"ai"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	GlobalScan  string `mapstructure:"global_scan"`
	AccountSync string `mapstructure:"account_sync"`
	UsageSweep  string `mapstructure:"usage_sweep"`
}

// OddsFeedConfig drives the betting scanners. APIKey absent means those
// scanners are skipped with a visible per-scanner error.
type OddsFeedConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Regions   string        `mapstructure:"regions"`
	Sports    []string      `mapstructure:"sports"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

type MarketDataConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Symbols []string      `mapstructure:"symbols"`
	TopN    int           `mapstructure:"top_n"`
}

type CryptoDataConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Symbols []string      `mapstructure:"symbols"`
}

type ScanConfig struct {
	ScannerTimeout  time.Duration `mapstructure:"scanner_timeout"`
	InsertBatchSize int           `mapstructure:"insert_batch_size"`
}

// AIConfig gates enrichment. APIKey absent means enrichment is silently
// skipped; it never produces a caller-visible error.
type AIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence int           `mapstructure:"min_confidence"`
}

type AlertsConfig struct {
	MinConfidence int            `mapstructure:"min_confidence"`
	Email         EmailConfig    `mapstructure:"email"`
	WhatsApp      WhatsAppConfig `mapstructure:"whatsapp"`
}

type EmailConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	From    string `mapstructure:"from"`
}

type WhatsAppConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Token    string `mapstructure:"token"`
	SenderID string `mapstructure:"sender_id"`
}

type PlatformsConfig struct {
	Betfair BetfairConfig `mapstructure:"betfair"`
	Kraken  KrakenConfig  `mapstructure:"kraken"`
	IBKR    IBKRConfig    `mapstructure:"ibkr"`
}

type BetfairConfig struct {
	AppKey       string        `mapstructure:"app_key"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	BaseURL      string        `mapstructure:"base_url"`
	AuthURL      string        `mapstructure:"auth_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type KrakenConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IBKRConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	// Provider keys are also accepted under their historical plain env names
	// so deployments predating the TS_ prefix keep working.
	_ = v.BindEnv("odds_feed.api_key", "TS_ODDS_FEED_API_KEY", "ODDS_API_KEY")
	_ = v.BindEnv("market_data.api_key", "TS_MARKET_DATA_API_KEY", "MARKET_DATA_API_KEY")
	_ = v.BindEnv("ai.api_key", "TS_AI_API_KEY", "AI_API_KEY")

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.global_scan", "@every 30m")
	v.SetDefault("cron.account_sync", "@every 1h")
	v.SetDefault("cron.usage_sweep", "@every 24h")

	v.SetDefault("odds_feed.base_url", "https://api.the-odds-api.com")
	v.SetDefault("odds_feed.timeout", "15s")
	v.SetDefault("odds_feed.regions", "uk,eu")
	v.SetDefault("odds_feed.sports", []string{"soccer_epl", "basketball_nba", "tennis_atp"})
	v.SetDefault("odds_feed.rate_limit", 5)

	v.SetDefault("market_data.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("market_data.timeout", "15s")
	v.SetDefault("market_data.symbols", []string{
		"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA", "AMD", "NFLX", "JPM",
		"V", "UNH", "XOM", "AVGO", "ORCL",
	})
	v.SetDefault("market_data.top_n", 10)

	v.SetDefault("crypto_data.base_url", "https://fapi.binance.com")
	v.SetDefault("crypto_data.timeout", "15s")
	v.SetDefault("crypto_data.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"})

	v.SetDefault("scan.scanner_timeout", "30s")
	v.SetDefault("scan.insert_batch_size", 200)

	v.SetDefault("ai.base_url", "https://api.openai.com")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "20s")
	v.SetDefault("ai.min_confidence", 70)

	v.SetDefault("alerts.min_confidence", 70)
	v.SetDefault("alerts.email.base_url", "https://api.resend.com")
	v.SetDefault("alerts.whatsapp.base_url", "https://graph.facebook.com/v19.0")

	v.SetDefault("platforms.betfair.base_url", "https://api.betfair.com/exchange")
	v.SetDefault("platforms.betfair.auth_url", "https://identitysso.betfair.com")
	v.SetDefault("platforms.betfair.timeout", "15s")
	v.SetDefault("platforms.kraken.base_url", "https://api.kraken.com")
	v.SetDefault("platforms.kraken.timeout", "15s")
	v.SetDefault("platforms.ibkr.base_url", "https://api.ibkr.com")
	v.SetDefault("platforms.ibkr.timeout", "15s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
