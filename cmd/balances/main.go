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
	"time"

	"bmx-rewards-go/internal/common"
	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/database"
	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	emailFlag := flag.String("email", "", "Limit output to one user")
	historyFlag := flag.Int("history", 0, "Also print the last N ledger transactions")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var users []models.User
	if *emailFlag != "" {
		user, err := dbService.GetUserByEmail(ctx, *emailFlag)
		if err != nil {
			zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
		}
		users = []models.User{*user}
	} else {
		users, err = dbService.GetUsers(ctx)
		if err != nil {
			zap.L().Fatal("Failed to load users", zap.Error(err))
		}
	}

	common.PrintHeader("USER BALANCES", common.DefaultWidth)

	for _, user := range users {
		printUser(ctx, dbService, user, cfg.Settlement.Asset, *historyFlag)
	}

	common.PrintFooter(fmt.Sprintf("Users: %d", len(users)), common.DefaultWidth)
}

func printUser(ctx context.Context, dbService *database.Service, user models.User, asset string, history int) {
	balance, err := dbService.GetUserBalance(ctx, user.Id, asset)
	if err != nil {
		zap.L().Error("Failed to get balance",
			zap.String("user_id", user.Id),
			zap.Error(err))
		return
	}

	eligibility := "not eligible"
	if user.Eligible {
		eligibility = "eligible"
	}
	category := user.Category
	if category == "" {
		category = "none"
	}

	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Category: %s, level %d, %s\n", category, user.Level, eligibility)
	fmt.Printf("│  Points: %s\n", user.Points.String())

	intent, err := dbService.GetActiveIntent(ctx, user.Id, time.Now().UTC())
	if err == nil {
		fmt.Printf("│  Pending deposit: %s %s, expires %s\n",
			intent.ExpectedAmount.StringFixed(2), asset,
			intent.ExpiresAt.Format("2006-01-02 15:04 MST"))
	} else if !errors.Is(err, store.ErrNoMatchingIntent) {
		zap.L().Error("Failed to check pending intent",
			zap.String("user_id", user.Id),
			zap.Error(err))
	}

	common.PrintBoxSeparator(78)
	fmt.Printf("%s %-6s: %s\n", common.BoxPrefix(history == 0), asset, balance.StringFixed(2))

	if history == 0 {
		return
	}

	transactions, err := dbService.GetTransactionHistory(ctx, user.Id, asset, history, 0)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", user.Id),
			zap.Error(err))
		return
	}
	for i, tx := range transactions {
		fmt.Printf("%s %s  %-8s %12s -> %12s  %s\n",
			common.BoxPrefix(i == len(transactions)-1),
			tx.CreatedAt.Format("2006-01-02 15:04"),
			tx.TransactionType,
			tx.Amount.StringFixed(2),
			tx.BalanceAfter.StringFixed(2),
			tx.Reference)
	}
}
