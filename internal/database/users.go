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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// pointsPerLevel is the accumulated points a user needs to advance one
// level, capped at maxLevel.
var pointsPerLevel = decimal.NewFromInt(5000)

const maxLevel = 100

func levelForPoints(points decimal.Decimal) int {
	level := int(points.Div(pointsPerLevel).IntPart()) + 1
	if level > maxLevel {
		return maxLevel
	}
	return level
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUsers)
	if err != nil {
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, queryGetUserById, userId)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	return user, err
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, queryGetUserByEmail, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	return user, err
}

func (s *Service) CreateUser(ctx context.Context, userId, name, email, referredBy string) (*models.User, error) {
	if userId == "" {
		userId = uuid.New().String()
	}
	if referredBy != "" {
		if _, err := s.GetUserById(ctx, referredBy); err != nil {
			return nil, fmt.Errorf("referrer %s: %w", referredBy, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, queryInsertUser, userId, name, email, referredBy); err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("user with email %s already exists", email)
		}
		return nil, fmt.Errorf("unable to create user: %w", err)
	}
	zap.L().Info("Created user",
		zap.String("user_id", userId),
		zap.String("email", email),
		zap.String("referred_by", referredBy))
	return s.GetUserById(ctx, userId)
}

// SetCategory pins the reward category ahead of the first qualifying
// deposit.
func (s *Service) SetCategory(ctx context.Context, userId, category string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET category = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, category, userId)
	if err != nil {
		return fmt.Errorf("unable to set category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// MarkEligible flags the user as having completed a qualifying deposit
// and pins the reward category the deposit was made under.
func (s *Service) MarkEligible(ctx context.Context, userId, category string) error {
	result, err := s.db.ExecContext(ctx, queryMarkEligible, category, category, userId)
	if err != nil {
		return fmt.Errorf("unable to mark user eligible: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// RecordReferralReward persists the payout entry and advances the
// referrer's points and level in the same transaction. Recording the
// same referred user again is a no-op, so a retried settlement cycle
// cannot double the referrer's points.
func (s *Service) RecordReferralReward(ctx context.Context, referrerId, referredId string, amount decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryInsertReferralReward, uuid.New().String(), referrerId, referredId, amount.String()); err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		return fmt.Errorf("unable to record referral reward: %w", err)
	}

	var pointsStr string
	if err := tx.QueryRowContext(ctx, `SELECT points FROM users WHERE id = ?`, referrerId).Scan(&pointsStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("unable to load referrer points: %w", err)
	}
	points, err := decimal.NewFromString(pointsStr)
	if err != nil {
		return fmt.Errorf("corrupt points value for user %s: %w", referrerId, err)
	}

	newPoints := points.Add(amount)
	newLevel := levelForPoints(newPoints)
	if _, err := tx.ExecContext(ctx, queryUpdatePointsAndLevel, newPoints.String(), newLevel, referrerId); err != nil {
		return fmt.Errorf("unable to update referrer points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit referral reward: %w", err)
	}

	zap.L().Info("Recorded referral reward",
		zap.String("referrer_id", referrerId),
		zap.String("referred_id", referredId),
		zap.String("amount", amount.String()),
		zap.Int("referrer_level", newLevel))
	return nil
}

func (s *Service) CountReferralRewards(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountReferralRewards, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count referral rewards: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var points string
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.Category, &user.Eligible,
		&user.Level, &points, &user.ReferredBy, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Points, err = decimal.NewFromString(points)
	if err != nil {
		return nil, fmt.Errorf("corrupt points value for user %s: %w", user.Id, err)
	}
	return &user, nil
}
