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

package settlement

import (
	"context"
	"sync"
	"time"

	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/notify"
	"bmx-rewards-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DepositGateway is the slice of the exchange client the engine needs.
type DepositGateway interface {
	GetDepositHistory(ctx context.Context, start time.Time) ([]models.DepositEvent, error)
}

// EngineConfig contains configuration for the settlement Engine.
type EngineConfig struct {
	Store   store.LedgerStore
	Gateway DepositGateway
	Sink    notify.Sink
	Tables  *config.Tables

	PollInterval    time.Duration
	LookbackWindow  time.Duration
	CleanupInterval time.Duration
	Asset           string
	Network         string
	OperatorEmail   string
}

// Engine polls the exchange deposit history and settles confirmed
// deposits against waiting intents. Polling is reconciliation, not
// event delivery: each cycle re-reads the full lookback window, so an
// event may be observed many times but settles at most once.
type Engine struct {
	store   store.LedgerStore
	gateway DepositGateway
	sink    notify.Sink
	tables  *config.Tables

	pollInterval    time.Duration
	lookbackWindow  time.Duration
	cleanupInterval time.Duration
	asset           string
	network         string
	operatorEmail   string

	// Fast-path dedup cache. The persisted external tx id check stays
	// authoritative; this only short-circuits repeat observations
	// within the lookback window.
	processedTxIds map[string]time.Time
	mutex          sync.RWMutex

	// Collapses overlapping poll requests into one running cycle.
	pollGroup singleflight.Group

	now func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		store:           cfg.Store,
		gateway:         cfg.Gateway,
		sink:            cfg.Sink,
		tables:          cfg.Tables,
		pollInterval:    cfg.PollInterval,
		lookbackWindow:  cfg.LookbackWindow,
		cleanupInterval: cfg.CleanupInterval,
		asset:           cfg.Asset,
		network:         cfg.Network,
		operatorEmail:   cfg.OperatorEmail,
		processedTxIds:  make(map[string]time.Time),
		now:             time.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins the polling and cleanup loops. The first poll runs
// immediately so a restart catches up without waiting a full interval.
func (e *Engine) Start(ctx context.Context) {
	zap.L().Info("Starting settlement engine",
		zap.Duration("poll_interval", e.pollInterval),
		zap.Duration("lookback_window", e.lookbackWindow),
		zap.String("network", e.network))

	go e.pollLoop(ctx)
	go e.cleanupLoop(ctx)
}

// Stop gracefully stops the engine.
func (e *Engine) Stop() {
	zap.L().Info("Stopping settlement engine")
	close(e.stopChan)
	<-e.doneChan
	zap.L().Info("Settlement engine stopped")
}

func (e *Engine) pollLoop(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.Poll(ctx)

	for {
		select {
		case <-ticker.C:
			e.Poll(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll runs one reconciliation cycle. Concurrent callers share a single
// in-flight cycle.
func (e *Engine) Poll(ctx context.Context) {
	e.pollGroup.Do("poll", func() (any, error) {
		e.poll(ctx)
		return nil, nil
	})
}

func (e *Engine) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Recovered from panic in poll cycle", zap.Any("panic", r))
		}
	}()

	now := e.now().UTC()
	since := now.Add(-e.lookbackWindow)

	events, err := e.gateway.GetDepositHistory(ctx, since)
	if err != nil {
		zap.L().Error("Failed to fetch deposit history", zap.Error(err))
	} else {
		for _, event := range events {
			if err := e.processEvent(ctx, event); err != nil {
				zap.L().Error("Failed to process deposit event",
					zap.String("external_tx_id", event.TxId),
					zap.String("amount", event.Amount),
					zap.Error(err))
			}
		}
	}

	// The expiry sweep runs even when the fetch failed, so stale intents
	// never outlive a gateway outage.
	expired, err := e.store.ExpireIntents(ctx, now)
	if err != nil {
		zap.L().Error("Failed to expire intents", zap.Error(err))
	} else if expired > 0 {
		zap.L().Info("Expired stale deposit intents", zap.Int64("count", expired))
	}
}

func (e *Engine) isProcessed(txId string) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	_, exists := e.processedTxIds[txId]
	return exists
}

func (e *Engine) markProcessed(txId string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.processedTxIds[txId] = e.now()
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.cleanupProcessed()
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) cleanupProcessed() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	cutoff := e.now().UTC().Add(-e.lookbackWindow)
	cleaned := 0
	for txId, processedAt := range e.processedTxIds {
		if processedAt.Before(cutoff) {
			delete(e.processedTxIds, txId)
			cleaned++
		}
	}
	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed transactions",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(e.processedTxIds)))
	}
}
