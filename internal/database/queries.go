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

const (
	queryGetUsers = `
		SELECT id, name, email, category, eligible, level, points, referred_by, created_at, updated_at
		FROM users WHERE active = 1 ORDER BY created_at`

	queryGetUserById = `
		SELECT id, name, email, category, eligible, level, points, referred_by, created_at, updated_at
		FROM users WHERE id = ?`

	queryGetUserByEmail = `
		SELECT id, name, email, category, eligible, level, points, referred_by, created_at, updated_at
		FROM users WHERE email = ?`

	queryInsertUser = `
		INSERT INTO users (id, name, email, referred_by) VALUES (?, ?, ?, ?)`

	queryMarkEligible = `
		UPDATE users
		SET eligible = 1,
		    category = CASE WHEN ? = '' THEN category ELSE ? END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryUpdatePointsAndLevel = `
		UPDATE users SET points = ?, level = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	queryInsertReferralReward = `
		INSERT INTO referral_rewards (id, referrer_id, referred_id, amount) VALUES (?, ?, ?, ?)`

	queryCountReferralRewards = `
		SELECT COUNT(*) FROM referral_rewards WHERE referrer_id = ?`

	queryInsertIntent = `
		INSERT INTO deposit_intents (id, user_id, expected_amount, base_amount, category, network, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetActiveIntent = `
		SELECT id, user_id, expected_amount, base_amount, category, network, status, external_tx_id, created_at, expires_at, completed_at
		FROM deposit_intents
		WHERE user_id = ? AND status = 'waiting' AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`

	queryGetIntentByExternalTx = `
		SELECT id, user_id, expected_amount, base_amount, category, network, status, external_tx_id, created_at, expires_at, completed_at
		FROM deposit_intents WHERE external_tx_id = ?`

	queryGetWaitingIntentByAmount = `
		SELECT id, user_id, expected_amount, base_amount, category, network, status, external_tx_id, created_at, expires_at, completed_at
		FROM deposit_intents
		WHERE expected_amount = ? AND network = ? AND status = 'waiting' AND expires_at > ?`

	queryCompleteIntent = `
		UPDATE deposit_intents
		SET status = 'completed', external_tx_id = ?, completed_at = ?
		WHERE id = ? AND status = 'waiting'`

	queryExpireIntents = `
		UPDATE deposit_intents SET status = 'expired'
		WHERE status = 'waiting' AND expires_at <= ?`

	queryInsertWithdrawal = `
		INSERT INTO withdrawals (id, user_id, amount, address, network, external_tx_id)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetWithdrawal = `
		SELECT id, user_id, amount, address, network, external_tx_id, admin_status, gateway_status, requested_at
		FROM withdrawals WHERE id = ?`

	queryCountWithdrawals = `
		SELECT COUNT(*) FROM withdrawals WHERE user_id = ?`

	queryListWithdrawals = `
		SELECT id, user_id, amount, address, network, external_tx_id, admin_status, gateway_status, requested_at
		FROM withdrawals ORDER BY requested_at DESC LIMIT ? OFFSET ?`

	queryListWithdrawalsByUser = `
		SELECT id, user_id, amount, address, network, external_tx_id, admin_status, gateway_status, requested_at
		FROM withdrawals WHERE user_id = ? ORDER BY requested_at DESC LIMIT ? OFFSET ?`

	queryUpdateAdminStatus = `
		UPDATE withdrawals SET admin_status = ? WHERE id = ?`

	queryUpdateGatewayStatus = `
		UPDATE withdrawals SET gateway_status = ? WHERE external_tx_id = ?`

	// Subledger queries
	queryGetBalance = `
		SELECT balance FROM account_balances WHERE user_id = ? AND asset = ?`

	queryGetAccountBalance = `
		SELECT id, balance, version FROM account_balances WHERE user_id = ? AND asset = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, asset, balance, version) VALUES (?, ?, ?, ?, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND asset = ? AND version = ?`

	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE external_transaction_id = ? LIMIT 1`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, asset, transaction_type, amount, balance_before, balance_after,
			external_transaction_id, reference, status, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, asset, transaction_type, amount, balance_before, balance_after,
		       external_transaction_id, reference, status, created_at, processed_at
		FROM transactions
		WHERE user_id = ? AND asset = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryReconcileBalance = `
		SELECT amount
		FROM transactions
		WHERE user_id = ? AND asset = ? AND status = 'confirmed'`
)
