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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bmx-rewards-go/internal/common"
	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/settlement"
	"bmx-rewards-go/internal/withdrawal"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting settlement daemon")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	engine := settlement.NewEngine(settlement.EngineConfig{
		Store:           services.DbService,
		Gateway:         services.Gateway,
		Sink:            services.Sink,
		Tables:          services.Tables,
		PollInterval:    cfg.Settlement.PollInterval,
		LookbackWindow:  cfg.Settlement.LookbackWindow,
		CleanupInterval: cfg.Settlement.CleanupInterval,
		Asset:           cfg.Settlement.Asset,
		Network:         cfg.Settlement.Network,
		OperatorEmail:   cfg.Settlement.OperatorEmail,
	})
	engine.Start(ctx)

	processor := withdrawal.NewProcessor(services.DbService, services.Gateway,
		services.Sink, services.Tables, cfg.Withdrawal)
	go refreshWithdrawalStatuses(ctx, processor, services.Gateway, cfg.Settlement.PollInterval, cfg.Settlement.LookbackWindow)

	zap.L().Info("Settlement daemon running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping engine...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Settlement daemon stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}

// refreshWithdrawalStatuses periodically mirrors exchange withdrawal
// statuses onto local records, on the same cadence as deposit polling.
func refreshWithdrawalStatuses(ctx context.Context, processor *withdrawal.Processor, gateway withdrawal.HistoryGateway, interval, lookback time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			since := time.Now().UTC().Add(-lookback)
			if err := processor.RefreshGatewayStatuses(ctx, gateway, since); err != nil {
				zap.L().Error("Withdrawal status refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
