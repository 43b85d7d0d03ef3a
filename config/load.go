package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dip-buyer-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string         `yaml:"env"`
	Symbols     []string       `yaml:"symbols"`
	Thresholds  []float64      `yaml:"thresholds"`
	Trading     TradingConfig  `yaml:"trading"`
	Intervals   IntervalConfig `yaml:"intervals"`
	Gateway     GatewayConfig  `yaml:"gateway"`
	Telegram    TelegramConfig `yaml:"telegram"`
	Store       StoreConfig    `yaml:"store"`
	Logger      logger.Config  `yaml:"logger"`
	MetricsAddr string         `yaml:"metricsAddr"`
}

type TradingConfig struct {
	OrderKind          string  `yaml:"orderKind"`          // LIMIT 或 MARKET
	TradeAmount        float64 `yaml:"tradeAmount"`        // 每单 USDT；usePercentage 时为可用余额比例
	UsePercentage      bool    `yaml:"usePercentage"`      //
	USDTReserve        float64 `yaml:"usdtReserve"`        // 永不动用的 USDT 底仓
	MaxOrdersPerSymbol int     `yaml:"maxOrdersPerSymbol"` //
	ExpiryHours        int     `yaml:"expiryHours"`        // 限价单有效期，默认 8
}

type IntervalConfig struct {
	SignalSeconds int    `yaml:"signalSeconds"` // 信号主循环，默认 60
	PollSeconds   int    `yaml:"pollSeconds"`   // 成交轮询，默认 5
	SweepSeconds  int    `yaml:"sweepSeconds"`  // 过期清理，默认 300
	KlineInterval string `yaml:"klineInterval"` // 信号用 K 线周期，默认 1h
	KlineLimit    int    `yaml:"klineLimit"`    // 收盘价序列长度，默认 24
}

type GatewayConfig struct {
	APIKey            string  `yaml:"apiKey"`
	APISecret         string  `yaml:"apiSecret"`
	BaseURL           string  `yaml:"baseURL"`
	Testnet           bool    `yaml:"testnet"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatID"`
}

type StoreConfig struct {
	Path string `yaml:"path"` // SQLite 文件路径，留空禁用持久化
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("DIPBUYER_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("DIPBUYER_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	if v := os.Getenv("DIPBUYER_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("DIPBUYER_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Trading.OrderKind == "" {
		cfg.Trading.OrderKind = "LIMIT"
	}
	if cfg.Trading.ExpiryHours <= 0 {
		cfg.Trading.ExpiryHours = 8
	}
	if cfg.Trading.MaxOrdersPerSymbol <= 0 {
		cfg.Trading.MaxOrdersPerSymbol = 3
	}
	if cfg.Intervals.SignalSeconds <= 0 {
		cfg.Intervals.SignalSeconds = 60
	}
	if cfg.Intervals.PollSeconds <= 0 {
		cfg.Intervals.PollSeconds = 5
	}
	if cfg.Intervals.SweepSeconds <= 0 {
		cfg.Intervals.SweepSeconds = 300
	}
	if cfg.Intervals.KlineInterval == "" {
		cfg.Intervals.KlineInterval = "1h"
	}
	if cfg.Intervals.KlineLimit <= 0 {
		cfg.Intervals.KlineLimit = 24
	}
	if cfg.Logger.Level == "" {
		cfg.Logger = logger.DefaultConfig()
	}
}

// ExpiryWindow 限价单有效期。
func (t TradingConfig) ExpiryWindow() time.Duration {
	return time.Duration(t.ExpiryHours) * time.Hour
}
