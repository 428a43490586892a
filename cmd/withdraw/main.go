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
	"bmx-rewards-go/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	emailFlag := flag.String("email", "", "Email of the withdrawing user (required)")
	amountFlag := flag.String("amount", "", "Amount to withdraw (required)")
	addressFlag := flag.String("address", "", "Destination address (required)")
	networkFlag := flag.String("network", "", "Network (defaults to the configured network)")
	flag.Parse()

	if *emailFlag == "" || *amountFlag == "" || *addressFlag == "" {
		fmt.Println("Usage: withdraw --email <user email> --amount <amount> --address <address> [--network <network>]")
		return
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		fmt.Printf("Invalid amount %q\n", *amountFlag)
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

	network := *networkFlag
	if network == "" {
		network = cfg.Withdrawal.Network
	}

	processor := withdrawal.NewProcessor(services.DbService, services.Gateway,
		services.Sink, services.Tables, cfg.Withdrawal)

	record, err := processor.Process(ctx, user.Id, amount, *addressFlag, network)
	if err != nil {
		fmt.Printf("Withdrawal rejected: %v\n", err)
		return
	}

	common.PrintHeader("WITHDRAWAL SUBMITTED", common.DefaultWidth)
	fmt.Printf("ID:             %s\n", record.Id)
	fmt.Printf("User:           %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Amount:         %s %s\n", record.Amount.StringFixed(2), cfg.Withdrawal.Asset)
	fmt.Printf("Address:        %s\n", record.Address)
	fmt.Printf("Network:        %s\n", record.Network)
	fmt.Printf("External tx:    %s\n", record.ExternalTxId)
	fmt.Printf("Admin status:   %s\n", record.AdminStatus)
	fmt.Printf("Gateway status: %s\n", record.GatewayStatus)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
