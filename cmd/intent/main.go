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
	"errors"
	"flag"
	"fmt"

	"bmx-rewards-go/internal/common"
	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/deposit"
	"bmx-rewards-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	emailFlag := flag.String("email", "", "Email of the depositing user (required)")
	flag.Parse()

	if *emailFlag == "" {
		fmt.Println("Usage: intent --email <user email>")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
	}

	intentService := deposit.NewService(services.DbService, services.Gateway, services.Sink, cfg.Intent)

	result, err := intentService.CreateIntent(ctx, user.Id)
	if errors.Is(err, store.ErrActiveIntentExists) {
		fmt.Println("You already have a pending deposit request.")
		return
	}
	if errors.Is(err, deposit.ErrAmountExhausted) {
		fmt.Println("No unique deposit amount is available right now, try again later.")
		return
	}
	if err != nil {
		zap.L().Fatal("Failed to create deposit intent", zap.Error(err))
	}

	common.PrintHeader("DEPOSIT INTENT CREATED", common.DefaultWidth)
	fmt.Printf("User:       %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Coin:       %s\n", cfg.Intent.Coin)
	fmt.Printf("Network:    %s\n", cfg.Intent.Network)
	fmt.Printf("Address:    %s\n", result.Address)
	fmt.Printf("Amount:     %s (send EXACTLY this amount)\n", result.Intent.ExpectedAmount.StringFixed(2))
	fmt.Printf("Expires at: %s\n", result.Intent.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
