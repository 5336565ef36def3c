package config

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
)

const (
	ExchangeMEXC = "mexc"
	ExchangeGate = "gate"
)

type Config struct {
	Log           logging.Options     `yaml:"log"`
	Transport     TransportConfig     `yaml:"transport"`
	Retry         RetryConfig         `yaml:"retry"`
	Depth         DepthConfig         `yaml:"depth"`
	History       HistoryConfig       `yaml:"history"`
	Spot          SpotConfig          `yaml:"spot"`
	Exchanges     ExchangesConfig     `yaml:"exchanges"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type TransportConfig struct {
	TimeoutMs          int64   `yaml:"timeout_ms"`
	InsecureSkipVerify bool    `yaml:"insecure_skip_verify"`
	RateLimit          float64 `yaml:"rate_limit"`
	Burst              int     `yaml:"burst"`
}

type RetryConfig struct {
	IntervalMs  int64 `yaml:"interval_ms"`
	MaxAttempts uint  `yaml:"max_attempts"`
}

type DepthConfig struct {
	MaxSkewMs int64 `yaml:"max_skew_ms"`
	Limit     int   `yaml:"limit"`
}

type HistoryConfig struct {
	WindowSec int64 `yaml:"window_sec"`
}

type SpotConfig struct {
	BuyTIF  core.TimeInForce `yaml:"buy_tif"`
	SellTIF core.TimeInForce `yaml:"sell_tif"`
}

type ExchangesConfig struct {
	MEXC ExchangeConfig `yaml:"mexc"`
	Gate ExchangeConfig `yaml:"gate"`
}

type ExchangeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	SourceAddr     string `yaml:"source_addr"`
	SpotBaseURL    string `yaml:"spot_base_url"`
	FuturesBaseURL string `yaml:"futures_base_url"`
	WSURL          string `yaml:"ws_url"`
	Leverage       int    `yaml:"leverage"`
	SpotSymbol     string `yaml:"spot_symbol"`
	FuturesSymbol  string `yaml:"futures_symbol"`
	QuoteCurrency  string `yaml:"quote_currency"`
	// MinQuoteBalance makes preflight checks fail when the quote balance is lower.
	MinQuoteBalance Decimal `yaml:"min_quote_balance"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type MetricsConfig struct {
	OTLPEndpoint      string `yaml:"otlp_endpoint"`
	Insecure          bool   `yaml:"insecure"`
	ExportIntervalSec int64  `yaml:"export_interval_sec"`
}

type RuntimeConfig struct {
	AlertDropReportSec int64 `yaml:"alert_drop_report_sec"`
}

// Load reads a single YAML document, expanding ${VAR} references from the environment.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Log.File = strings.TrimSpace(c.Log.File)
	c.Spot.BuyTIF = core.TimeInForce(strings.ToLower(strings.TrimSpace(string(c.Spot.BuyTIF))))
	c.Spot.SellTIF = core.TimeInForce(strings.ToLower(strings.TrimSpace(string(c.Spot.SellTIF))))
	c.Exchanges.MEXC.normalize()
	c.Exchanges.Gate.normalize()
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
	c.Observability.Metrics.OTLPEndpoint = strings.TrimSpace(c.Observability.Metrics.OTLPEndpoint)
}

func (e *ExchangeConfig) normalize() {
	e.APIKey = strings.TrimSpace(e.APIKey)
	e.APISecret = strings.TrimSpace(e.APISecret)
	e.SourceAddr = strings.TrimSpace(e.SourceAddr)
	e.SpotBaseURL = strings.TrimSpace(e.SpotBaseURL)
	e.FuturesBaseURL = strings.TrimSpace(e.FuturesBaseURL)
	e.WSURL = strings.TrimSpace(e.WSURL)
	e.SpotSymbol = strings.ToUpper(strings.TrimSpace(e.SpotSymbol))
	e.FuturesSymbol = strings.ToUpper(strings.TrimSpace(e.FuturesSymbol))
	e.QuoteCurrency = strings.ToUpper(strings.TrimSpace(e.QuoteCurrency))
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Transport.TimeoutMs == 0 {
		c.Transport.TimeoutMs = rest.DefaultTimeout.Milliseconds()
	}
	if c.Transport.RateLimit > 0 && c.Transport.Burst == 0 {
		c.Transport.Burst = 1
	}
	if c.Retry.IntervalMs == 0 {
		c.Retry.IntervalMs = rest.DefaultRetryInterval.Milliseconds()
	}
	if c.Depth.MaxSkewMs == 0 {
		c.Depth.MaxSkewMs = core.DefaultMaxSkew.Milliseconds()
	}
	if c.Depth.Limit == 0 {
		c.Depth.Limit = 5
	}
	if c.History.WindowSec == 0 {
		c.History.WindowSec = 36000
	}
	if c.Spot.BuyTIF == "" {
		c.Spot.BuyTIF = core.IOC
	}
	if c.Spot.SellTIF == "" {
		c.Spot.SellTIF = core.Limit
	}
	for _, e := range []*ExchangeConfig{&c.Exchanges.MEXC, &c.Exchanges.Gate} {
		if e.QuoteCurrency == "" {
			e.QuoteCurrency = "USDT"
		}
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
	if c.Observability.Metrics.ExportIntervalSec == 0 {
		c.Observability.Metrics.ExportIntervalSec = 15
	}
	if c.Observability.Runtime.AlertDropReportSec == 0 {
		c.Observability.Runtime.AlertDropReportSec = 60
	}
}

func (c Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	if c.Transport.TimeoutMs < 1 || c.Transport.TimeoutMs > 120000 {
		return fmt.Errorf("transport.timeout_ms must be between 1 and 120000")
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("transport.rate_limit must be >= 0")
	}
	if c.Retry.IntervalMs < 1 || c.Retry.IntervalMs > 60000 {
		return fmt.Errorf("retry.interval_ms must be between 1 and 60000")
	}
	if c.Depth.MaxSkewMs < 1 {
		return fmt.Errorf("depth.max_skew_ms must be >= 1")
	}
	if c.Depth.Limit < 1 || c.Depth.Limit > 100 {
		return fmt.Errorf("depth.limit must be between 1 and 100")
	}
	if c.History.WindowSec < 1 {
		return fmt.Errorf("history.window_sec must be >= 1")
	}
	for name, tif := range map[string]core.TimeInForce{"spot.buy_tif": c.Spot.BuyTIF, "spot.sell_tif": c.Spot.SellTIF} {
		if tif != core.IOC && tif != core.Limit {
			return fmt.Errorf("%s must be ioc or limit", name)
		}
	}
	if !c.Exchanges.MEXC.Enabled && !c.Exchanges.Gate.Enabled {
		return fmt.Errorf("at least one of exchanges.mexc, exchanges.gate must be enabled")
	}
	if err := c.Exchanges.MEXC.validate(ExchangeMEXC); err != nil {
		return err
	}
	if err := c.Exchanges.Gate.validate(ExchangeGate); err != nil {
		return err
	}
	if c.Observability.Runtime.AlertDropReportSec < 0 || c.Observability.Runtime.AlertDropReportSec > 3600 {
		return fmt.Errorf("observability.runtime.alert_drop_report_sec must be between 0 and 3600")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	if c.Observability.Metrics.ExportIntervalSec < 1 || c.Observability.Metrics.ExportIntervalSec > 3600 {
		return fmt.Errorf("observability.metrics.export_interval_sec must be between 1 and 3600")
	}
	return nil
}

func (e ExchangeConfig) validate(name string) error {
	if !e.Enabled {
		return nil
	}
	prefix := "exchanges." + name
	if e.APIKey == "" || e.APISecret == "" {
		return fmt.Errorf("%s api_key/api_secret are required", prefix)
	}
	if e.SourceAddr != "" && net.ParseIP(e.SourceAddr) == nil {
		return fmt.Errorf("%s.source_addr must be an IP address", prefix)
	}
	if e.Leverage < 1 || e.Leverage > 125 {
		return fmt.Errorf("%s.leverage must be between 1 and 125", prefix)
	}
	for key, raw := range map[string]string{"spot_base_url": e.SpotBaseURL, "futures_base_url": e.FuturesBaseURL} {
		if raw == "" {
			continue
		}
		if err := validateURL(raw, "http", "https"); err != nil {
			return fmt.Errorf("%s.%s %v", prefix, key, err)
		}
	}
	if e.WSURL != "" {
		if err := validateURL(e.WSURL, "ws", "wss"); err != nil {
			return fmt.Errorf("%s.ws_url %v", prefix, err)
		}
	}
	if e.MinQuoteBalance.IsNegative() {
		return fmt.Errorf("%s.min_quote_balance must be >= 0", prefix)
	}
	return nil
}

// Enabled lists the enabled exchange names in a stable order.
func (c Config) Enabled() []string {
	var out []string
	if c.Exchanges.MEXC.Enabled {
		out = append(out, ExchangeMEXC)
	}
	if c.Exchanges.Gate.Enabled {
		out = append(out, ExchangeGate)
	}
	return out
}

func (c Config) Exchange(name string) (ExchangeConfig, bool) {
	switch name {
	case ExchangeMEXC:
		return c.Exchanges.MEXC, c.Exchanges.MEXC.Enabled
	case ExchangeGate:
		return c.Exchanges.Gate, c.Exchanges.Gate.Enabled
	}
	return ExchangeConfig{}, false
}

// TransportOptions builds the per-exchange transport settings. BaseURL is left for the caller.
func (c Config) TransportOptions(e ExchangeConfig) rest.Options {
	return rest.Options{
		SourceAddr:         e.SourceAddr,
		Timeout:            time.Duration(c.Transport.TimeoutMs) * time.Millisecond,
		InsecureSkipVerify: c.Transport.InsecureSkipVerify,
		RateLimit:          c.Transport.RateLimit,
		Burst:              c.Transport.Burst,
	}
}

func (c Config) RetryPolicy() rest.Policy {
	return rest.Policy{
		Interval:    time.Duration(c.Retry.IntervalMs) * time.Millisecond,
		MaxAttempts: c.Retry.MaxAttempts,
	}
}

func (c Config) MaxSkew() time.Duration {
	return time.Duration(c.Depth.MaxSkewMs) * time.Millisecond
}

func (c Config) HistoryWindow() time.Duration {
	return time.Duration(c.History.WindowSec) * time.Second
}

func (e ExchangeConfig) MinBalance() decimal.Decimal {
	return e.MinQuoteBalance.Decimal
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
