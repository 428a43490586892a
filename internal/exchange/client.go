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

package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bmx-rewards-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	endpointDepositHistory    = "/sapi/v1/capital/deposit/hisrec"
	endpointDepositAddress    = "/sapi/v1/capital/deposit/address"
	endpointWithdrawApply     = "/sapi/v1/capital/withdraw/apply"
	endpointWithdrawalHistory = "/sapi/v1/capital/withdraw/history"
)

// APIError is a non-2xx response from the exchange.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error: status %d, code %d: %s", e.Status, e.Code, e.Msg)
}

// Client is a signed REST client for the custodial exchange account
// holding user deposits. Every request carries an HMAC-SHA256 signature
// over its query parameters.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	coin       string
	network    string
	httpClient http.Client
}

func NewClient(cfg models.ExchangeConfig) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("exchange api credentials are required")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    cfg.BaseURL,
		coin:       cfg.Coin,
		network:    cfg.Network,
		httpClient: httpClient,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// do executes a signed request and decodes the JSON response into out.
// An empty response body is tolerated when out is nil.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr.Msg = string(body)
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unable to decode response from %s: %w", endpoint, err)
	}
	return nil
}

// GetDepositHistory returns deposits recorded by the exchange since
// start, filtered to the configured network.
func (c *Client) GetDepositHistory(ctx context.Context, start time.Time) ([]models.DepositEvent, error) {
	params := url.Values{}
	params.Set("coin", c.coin)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))

	var events []models.DepositEvent
	if err := c.do(ctx, http.MethodGet, endpointDepositHistory, params, &events); err != nil {
		return nil, fmt.Errorf("unable to fetch deposit history: %w", err)
	}

	filtered := events[:0]
	for _, event := range events {
		if event.Network == c.network {
			filtered = append(filtered, event)
		}
	}

	zap.L().Debug("Fetched deposit history",
		zap.Time("start", start),
		zap.Int("total", len(events)),
		zap.Int("matching_network", len(filtered)))
	return filtered, nil
}

// GetDepositAddress returns the exchange deposit address for the coin
// and network.
func (c *Client) GetDepositAddress(ctx context.Context, coin, network string) (*models.DepositAddress, error) {
	params := url.Values{}
	params.Set("coin", coin)
	params.Set("network", network)

	var address models.DepositAddress
	if err := c.do(ctx, http.MethodGet, endpointDepositAddress, params, &address); err != nil {
		return nil, fmt.Errorf("unable to fetch deposit address: %w", err)
	}
	if address.Address == "" {
		return nil, fmt.Errorf("exchange returned empty deposit address for %s on %s", coin, network)
	}
	return &address, nil
}

// CreateWithdrawal submits an on-chain withdrawal and returns the
// exchange's transaction id for it.
func (c *Client) CreateWithdrawal(ctx context.Context, address string, amount decimal.Decimal, network string) (*models.WithdrawalSubmission, error) {
	params := url.Values{}
	params.Set("coin", c.coin)
	params.Set("network", network)
	params.Set("address", address)
	params.Set("amount", amount.String())

	var submission models.WithdrawalSubmission
	if err := c.do(ctx, http.MethodPost, endpointWithdrawApply, params, &submission); err != nil {
		return nil, fmt.Errorf("unable to submit withdrawal: %w", err)
	}
	if submission.Id == "" {
		return nil, fmt.Errorf("exchange returned empty withdrawal id")
	}

	zap.L().Info("Submitted withdrawal to exchange",
		zap.String("external_tx_id", submission.Id),
		zap.String("amount", amount.String()),
		zap.String("network", network))
	return &submission, nil
}

// GetWithdrawalHistory returns withdrawals recorded by the exchange
// since start.
func (c *Client) GetWithdrawalHistory(ctx context.Context, start time.Time) ([]models.WithdrawalEvent, error) {
	params := url.Values{}
	params.Set("coin", c.coin)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))

	var events []models.WithdrawalEvent
	if err := c.do(ctx, http.MethodGet, endpointWithdrawalHistory, params, &events); err != nil {
		return nil, fmt.Errorf("unable to fetch withdrawal history: %w", err)
	}
	return events, nil
}
