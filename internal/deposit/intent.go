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

package deposit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/notify"
	"bmx-rewards-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrAmountExhausted means every candidate amount in the band was
// reserved by another waiting intent.
var ErrAmountExhausted = errors.New("no unique deposit amount available, try again later")

// AddressGateway is the slice of the exchange client the intent service
// needs.
type AddressGateway interface {
	GetDepositAddress(ctx context.Context, coin, network string) (*models.DepositAddress, error)
}

// Service issues deposit intents: a unique fractional amount the user
// must send exactly, plus the exchange deposit address to send it to.
type Service struct {
	store   store.LedgerStore
	gateway AddressGateway
	sink    notify.Sink
	cfg     models.IntentConfig
	now     func() time.Time
}

func NewService(ledger store.LedgerStore, gateway AddressGateway, sink notify.Sink, cfg models.IntentConfig) *Service {
	return &Service{
		store:   ledger,
		gateway: gateway,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Result is a created intent together with the address the user must
// deposit to.
type Result struct {
	Intent  *models.DepositIntent
	Address string
}

// CreateIntent reserves a unique amount for the user and emails the
// deposit instructions. A user with a live intent gets
// store.ErrActiveIntentExists instead of a second reservation.
func (s *Service) CreateIntent(ctx context.Context, userId string) (*Result, error) {
	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	intent, err := s.reserveAmount(ctx, user, now)
	if err != nil {
		return nil, err
	}

	address := s.depositAddress(ctx)

	subject, body := notify.DepositInstructions(user.Name, s.cfg.Coin, s.cfg.Network,
		address, intent.ExpectedAmount, int(s.cfg.TTL.Minutes()))
	if err := s.sink.Send(user.Email, subject, body); err != nil {
		zap.L().Warn("Failed to send deposit instructions",
			zap.String("user_id", user.Id),
			zap.Error(err))
	}

	return &Result{Intent: intent, Address: address}, nil
}

// reserveAmount draws random amounts from the configured band until one
// is free. The reservation itself is enforced by the store, so two
// concurrent reservations of the same amount cannot both succeed.
func (s *Service) reserveAmount(ctx context.Context, user *models.User, now time.Time) (*models.DepositIntent, error) {
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		amount := s.randomAmount()

		intent, err := s.store.CreateIntent(ctx, store.CreateIntentParams{
			UserId:         user.Id,
			ExpectedAmount: amount,
			BaseAmount:     amount,
			Category:       user.Category,
			Network:        s.cfg.Network,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.cfg.TTL),
		})
		if errors.Is(err, store.ErrAmountConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return intent, nil
	}
	return nil, fmt.Errorf("%w: exhausted %d attempts", ErrAmountExhausted, s.cfg.MaxAttempts)
}

// randomAmount picks a 2-decimal amount in [low, high]. The package
// level source is safe for the concurrent CreateIntent callers.
func (s *Service) randomAmount() decimal.Decimal {
	lowCents := s.cfg.AmountBandLow.Mul(decimal.NewFromInt(100)).IntPart()
	highCents := s.cfg.AmountBandHigh.Mul(decimal.NewFromInt(100)).IntPart()
	cents := lowCents + rand.Int63n(highCents-lowCents+1)
	return decimal.New(cents, -2)
}

// depositAddress fetches the live exchange address, falling back to the
// configured static address when the exchange is unreachable.
func (s *Service) depositAddress(ctx context.Context) string {
	addr, err := s.gateway.GetDepositAddress(ctx, s.cfg.Coin, s.cfg.Network)
	if err != nil {
		zap.L().Warn("Failed to fetch deposit address, using fallback",
			zap.Bool("fallback_address", true),
			zap.Error(err))
		return s.cfg.FallbackAddress
	}
	return addr.Address
}
