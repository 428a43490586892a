package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Exchange   ExchangeConfig
	Settlement SettlementConfig
	Intent     IntentConfig
	Withdrawal WithdrawalConfig
	Notify     NotifyConfig

	// TablesFile points at the YAML file holding the reward-rate and
	// withdrawal-tier tables. Compiled-in defaults apply when absent.
	TablesFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ExchangeConfig holds credentials and transport settings for the
// custodial exchange API.
type ExchangeConfig struct {
	APIKey         string
	APISecret      string
	BaseURL        string
	Coin           string
	Network        string
	RequestTimeout time.Duration
}

// SettlementConfig holds deposit settlement engine settings
type SettlementConfig struct {
	PollInterval    time.Duration
	LookbackWindow  time.Duration
	CleanupInterval time.Duration
	Asset           string
	Network         string
	OperatorEmail   string
}

// IntentConfig holds deposit intent creation settings
type IntentConfig struct {
	Coin            string
	Network         string
	TTL             time.Duration
	AmountBandLow   decimal.Decimal
	AmountBandHigh  decimal.Decimal
	MaxAttempts     int
	FallbackAddress string
}

// WithdrawalConfig holds withdrawal processing settings
type WithdrawalConfig struct {
	Asset          string
	Network        string
	RequestTimeout time.Duration
	OperatorEmail  string
}

// NotifyConfig holds outbound email settings
type NotifyConfig struct {
	SendGridKey string
	FromEmail   string
	FromName    string
}
