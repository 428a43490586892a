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
	"regexp"
	"strings"

	"bmx-rewards-go/internal/common"
	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	referrerFlag := flag.String("referrer", "", "Email of the referring user (optional)")
	categoryFlag := flag.String("category", "", "Reward category: Silver, Gold or Platinum (optional)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var referrerId string
	if *referrerFlag != "" {
		referrer, err := dbService.GetUserByEmail(ctx, *referrerFlag)
		if err != nil {
			zap.L().Fatal("Referrer not found", zap.String("email", *referrerFlag), zap.Error(err))
		}
		referrerId = referrer.Id
	}

	user, err := dbService.CreateUser(ctx, uuid.New().String(), *nameFlag, *emailFlag, referrerId)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	if *categoryFlag != "" {
		switch *categoryFlag {
		case "Silver", "Gold", "Platinum":
		default:
			zap.L().Fatal("Invalid category, expected Silver, Gold or Platinum",
				zap.String("category", *categoryFlag))
		}
		// Category is pinned now, eligibility still waits for the first
		// qualifying deposit.
		if err := setCategory(ctx, dbService, user.Id, *categoryFlag); err != nil {
			zap.L().Fatal("Failed to set category", zap.Error(err))
		}
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:       %s\n", user.Id)
	fmt.Printf("Name:     %s\n", user.Name)
	fmt.Printf("Email:    %s\n", user.Email)
	if *categoryFlag != "" {
		fmt.Printf("Category: %s\n", *categoryFlag)
	}
	if referrerId != "" {
		fmt.Printf("Referrer: %s\n", *referrerFlag)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully", zap.String("id", user.Id))
}

func setCategory(ctx context.Context, ledger store.LedgerStore, userId, category string) error {
	user, err := ledger.GetUserById(ctx, userId)
	if err != nil {
		return err
	}
	if user.Eligible {
		return fmt.Errorf("user is already eligible, category is fixed")
	}
	return ledger.SetCategory(ctx, userId, category)
}
