package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/notify"
	"bmx-rewards-go/internal/store"

	"go.uber.org/zap"
)

// ErrInvalidStatus means the requested administrative status is not one
// of Pending, Approved or Rejected.
var ErrInvalidStatus = errors.New("invalid withdrawal status")

// HistoryGateway is the slice of the exchange client the status
// refresher needs.
type HistoryGateway interface {
	GetWithdrawalHistory(ctx context.Context, start time.Time) ([]models.WithdrawalEvent, error)
}

// UpdateStatus moves a withdrawal's administrative status and notifies
// the owner. The gateway-driven status is untouched; the two lifecycles
// stay separate. No balance mutation happens here.
func (p *Processor) UpdateStatus(ctx context.Context, withdrawalId, status string) (*models.WithdrawalRecord, error) {
	switch status {
	case models.WithdrawalAdminPending, models.WithdrawalAdminApproved, models.WithdrawalAdminRejected:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	record, err := p.store.UpdateWithdrawalAdminStatus(ctx, withdrawalId, status)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Updated withdrawal admin status",
		zap.String("withdrawal_id", record.Id),
		zap.String("status", status))

	user, err := p.store.GetUserById(ctx, record.UserId)
	if err != nil {
		zap.L().Warn("Withdrawal owner not found for notification",
			zap.String("withdrawal_id", record.Id),
			zap.Error(err))
		return record, nil
	}

	subject, body := notify.WithdrawalStatusChanged(user.Name, p.cfg.Asset, status, record.Amount)
	if err := p.sink.Send(user.Email, subject, body); err != nil {
		zap.L().Warn("Failed to send status notification",
			zap.String("user_id", user.Id),
			zap.Error(err))
	}
	return record, nil
}

// RefreshGatewayStatuses pulls recent withdrawal events from the
// exchange and advances the gateway status of matching records.
func (p *Processor) RefreshGatewayStatuses(ctx context.Context, gateway HistoryGateway, since time.Time) error {
	events, err := gateway.GetWithdrawalHistory(ctx, since)
	if err != nil {
		return fmt.Errorf("unable to refresh withdrawal statuses: %w", err)
	}

	for _, event := range events {
		status := gatewayStatus(event.Status)
		if status == "" {
			continue
		}
		err := p.store.UpdateWithdrawalGatewayStatus(ctx, event.Id, status)
		if errors.Is(err, store.ErrWithdrawalNotFound) {
			continue
		}
		if err != nil {
			zap.L().Error("Failed to update gateway status",
				zap.String("external_tx_id", event.Id),
				zap.String("status", status),
				zap.Error(err))
			continue
		}
		zap.L().Info("Advanced withdrawal gateway status",
			zap.String("external_tx_id", event.Id),
			zap.String("status", status))
	}
	return nil
}

// gatewayStatus maps exchange status codes onto the record's gateway
// lifecycle. Codes that map to an in-flight state return an empty
// string and leave the record as is.
func gatewayStatus(code int) string {
	switch code {
	case models.WithdrawStatusCompleted:
		return models.WithdrawalGatewayCompleted
	case models.WithdrawStatusRejected, models.WithdrawStatusCancelled, models.WithdrawStatusFailure:
		return models.WithdrawalGatewayFailed
	default:
		return ""
	}
}
