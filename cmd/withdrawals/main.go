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
	"flag"
	"fmt"

	"bmx-rewards-go/internal/common"
	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/withdrawal"

	"go.uber.org/zap"
)

func main() {
	idFlag := flag.String("id", "", "Withdrawal id to update")
	statusFlag := flag.String("status", "", "New admin status: Pending, Approved or Rejected")
	emailFlag := flag.String("email", "", "Limit listing to one user's withdrawals")
	limitFlag := flag.Int("limit", 50, "Maximum rows to list")
	flag.Parse()

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

	if *idFlag != "" {
		if *statusFlag == "" {
			fmt.Println("Usage: withdrawals --id <withdrawal id> --status <Pending|Approved|Rejected>")
			return
		}
		processor := withdrawal.NewProcessor(services.DbService, services.Gateway,
			services.Sink, services.Tables, cfg.Withdrawal)
		record, err := processor.UpdateStatus(ctx, *idFlag, *statusFlag)
		if err != nil {
			fmt.Printf("Update failed: %v\n", err)
			return
		}
		fmt.Printf("Withdrawal %s is now %s (gateway: %s)\n",
			record.Id, record.AdminStatus, record.GatewayStatus)
		return
	}

	userId := ""
	if *emailFlag != "" {
		user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
		if err != nil {
			zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
		}
		userId = user.Id
	}

	records, err := services.DbService.ListWithdrawals(ctx, userId, *limitFlag, 0)
	if err != nil {
		zap.L().Fatal("Failed to list withdrawals", zap.Error(err))
	}

	common.PrintHeader("WITHDRAWALS", common.DefaultWidth)
	if len(records) == 0 {
		fmt.Println("No withdrawals found")
	}
	for i, record := range records {
		printWithdrawal(record, i == len(records)-1)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

func printWithdrawal(record models.WithdrawalRecord, isLast bool) {
	prefix := common.BoxPrefix(isLast)
	fmt.Printf("%s %s  %10s  %-8s/%-10s  %s  %s\n",
		prefix,
		record.Id[:8],
		record.Amount.StringFixed(2),
		record.AdminStatus,
		record.GatewayStatus,
		record.RequestedAt.Format("2006-01-02 15:04"),
		record.Address)
}
