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

// CreateWithdrawal persists a withdrawal record. Callers only reach this
// after the balance debit and the external submission both succeeded, so
// the record starts in the Processing gateway state.
func (s *Service) CreateWithdrawal(ctx context.Context, params store.CreateWithdrawalParams) (*models.WithdrawalRecord, error) {
	withdrawalId := uuid.New().String()
	if _, err := s.db.ExecContext(ctx, queryInsertWithdrawal,
		withdrawalId, params.UserId, params.Amount.StringFixed(2),
		params.Address, params.Network, params.ExternalTxId); err != nil {
		return nil, fmt.Errorf("unable to create withdrawal record: %w", err)
	}

	zap.L().Info("Created withdrawal record",
		zap.String("withdrawal_id", withdrawalId),
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.StringFixed(2)),
		zap.String("external_tx_id", params.ExternalTxId))

	return s.GetWithdrawal(ctx, withdrawalId)
}

func (s *Service) GetWithdrawal(ctx context.Context, withdrawalId string) (*models.WithdrawalRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetWithdrawal, withdrawalId)
	record, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWithdrawalNotFound
	}
	return record, err
}

func (s *Service) CountWithdrawals(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountWithdrawals, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count withdrawals: %w", err)
	}
	return count, nil
}

// ListWithdrawals returns withdrawals newest first. An empty userId
// lists across all users, for operator review.
func (s *Service) ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.WithdrawalRecord, error) {
	var rows *sql.Rows
	var err error
	if userId == "" {
		rows, err = s.db.QueryContext(ctx, queryListWithdrawals, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, queryListWithdrawalsByUser, userId, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to list withdrawals: %w", err)
	}
	defer rows.Close()

	var records []models.WithdrawalRecord
	for rows.Next() {
		record, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// UpdateWithdrawalAdminStatus moves the operator-facing status and
// returns the updated record.
func (s *Service) UpdateWithdrawalAdminStatus(ctx context.Context, withdrawalId, status string) (*models.WithdrawalRecord, error) {
	result, err := s.db.ExecContext(ctx, queryUpdateAdminStatus, status, withdrawalId)
	if err != nil {
		return nil, fmt.Errorf("unable to update admin status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrWithdrawalNotFound
	}
	return s.GetWithdrawal(ctx, withdrawalId)
}

// UpdateWithdrawalGatewayStatus advances the gateway-facing status for
// the record matching the external transaction id.
func (s *Service) UpdateWithdrawalGatewayStatus(ctx context.Context, externalTxId, status string) error {
	result, err := s.db.ExecContext(ctx, queryUpdateGatewayStatus, status, externalTxId)
	if err != nil {
		return fmt.Errorf("unable to update gateway status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrWithdrawalNotFound
	}
	return nil
}

func scanWithdrawal(row rowScanner) (*models.WithdrawalRecord, error) {
	var record models.WithdrawalRecord
	var amount string
	err := row.Scan(&record.Id, &record.UserId, &amount, &record.Address, &record.Network,
		&record.ExternalTxId, &record.AdminStatus, &record.GatewayStatus, &record.RequestedAt)
	if err != nil {
		return nil, err
	}
	record.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for withdrawal %s: %w", record.Id, err)
	}
	return &record, nil
}
