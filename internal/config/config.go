/**
 * Copyright 2025-present BMX Adventure
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bmx-rewards-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	pollInterval, err := getEnvDuration("SETTLEMENT_POLL_INTERVAL", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	lookbackWindow, err := getEnvDuration("SETTLEMENT_LOOKBACK_WINDOW", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("SETTLEMENT_CLEANUP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	intentTTL, err := getEnvDuration("INTENT_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	exchangeTimeout, err := getEnvDuration("EXCHANGE_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	withdrawalTimeout, err := getEnvDuration("WITHDRAWAL_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	bandLow, err := getEnvDecimal("INTENT_AMOUNT_BAND_LOW", "3.01")
	if err != nil {
		return nil, err
	}

	bandHigh, err := getEnvDecimal("INTENT_AMOUNT_BAND_HIGH", "3.99")
	if err != nil {
		return nil, err
	}

	if bandHigh.LessThanOrEqual(bandLow) {
		return nil, fmt.Errorf("intent amount band is empty: low=%s high=%s", bandLow, bandHigh)
	}

	coin := getEnvString("EXCHANGE_COIN", "USDT")
	network := getEnvString("EXCHANGE_NETWORK", "TRX")
	operatorEmail := getEnvString("OPERATOR_EMAIL", "")

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "rewards.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Exchange: models.ExchangeConfig{
			APIKey:         os.Getenv("EXCHANGE_API_KEY"),
			APISecret:      os.Getenv("EXCHANGE_API_SECRET"),
			BaseURL:        getEnvString("EXCHANGE_API_URL", "https://api.binance.com"),
			Coin:           coin,
			Network:        network,
			RequestTimeout: exchangeTimeout,
		},
		Settlement: models.SettlementConfig{
			PollInterval:    pollInterval,
			LookbackWindow:  lookbackWindow,
			CleanupInterval: cleanupInterval,
			Asset:           coin,
			Network:         network,
			OperatorEmail:   operatorEmail,
		},
		Intent: models.IntentConfig{
			Coin:            coin,
			Network:         network,
			TTL:             intentTTL,
			AmountBandLow:   bandLow,
			AmountBandHigh:  bandHigh,
			MaxAttempts:     getEnvInt("INTENT_MAX_ATTEMPTS", 100),
			FallbackAddress: os.Getenv("EXCHANGE_FALLBACK_DEPOSIT_ADDRESS"),
		},
		Withdrawal: models.WithdrawalConfig{
			Asset:          coin,
			Network:        network,
			RequestTimeout: withdrawalTimeout,
			OperatorEmail:  operatorEmail,
		},
		Notify: models.NotifyConfig{
			SendGridKey: os.Getenv("SENDGRID_API_KEY"),
			FromEmail:   getEnvString("NOTIFY_FROM_EMAIL", "noreply@bmx-adventure.example"),
			FromName:    getEnvString("NOTIFY_FROM_NAME", "BMX Adventure"),
		},
		TablesFile: getEnvString("TABLES_FILE", "rewards.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnvString(key, defaultValue)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, raw, err)
	}
	return value, nil
}
