package config

import (
	"errors"
	"fmt"
)

// Validate ensures required fields are present. A validation failure is the
// only condition that terminates the process at startup.
func Validate(cfg AppConfig) error {
	if len(cfg.Symbols) == 0 {
		return errors.New("symbols config is required")
	}
	if len(cfg.Thresholds) == 0 {
		return errors.New("at least one drop threshold is required")
	}
	for i, t := range cfg.Thresholds {
		if t <= 0 || t >= 1 {
			return fmt.Errorf("threshold %v must lie in (0, 1)", t)
		}
		if i > 0 && t <= cfg.Thresholds[i-1] {
			return fmt.Errorf("thresholds must be strictly ascending, got %v after %v", t, cfg.Thresholds[i-1])
		}
	}
	switch cfg.Trading.OrderKind {
	case "LIMIT", "MARKET":
	default:
		return fmt.Errorf("trading.orderKind must be LIMIT or MARKET, got %q", cfg.Trading.OrderKind)
	}
	if cfg.Trading.TradeAmount <= 0 {
		return errors.New("trading.tradeAmount must be > 0")
	}
	if cfg.Trading.UsePercentage && cfg.Trading.TradeAmount > 1 {
		return errors.New("trading.tradeAmount must be a fraction in (0, 1] when usePercentage is set")
	}
	if cfg.Trading.USDTReserve < 0 {
		return errors.New("trading.usdtReserve must be >= 0")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.botToken/chatID is required when telegram is enabled")
	}
	return nil
}
