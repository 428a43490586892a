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

package models

// Exchange deposit status codes. Only confirmed deposits are settled;
// everything else is left for a later poll cycle.
const (
	DepositStatusPending   = 0
	DepositStatusConfirmed = 1
	DepositStatusCredited  = 6
)

// Exchange withdrawal status codes.
const (
	WithdrawStatusEmailSent  = 0
	WithdrawStatusCancelled  = 1
	WithdrawStatusAwaiting   = 2
	WithdrawStatusRejected   = 3
	WithdrawStatusProcessing = 4
	WithdrawStatusFailure    = 5
	WithdrawStatusCompleted  = 6
)

// DepositEvent is a single deposit record from the exchange deposit history.
// Amount stays a string until matching time so the exact decimal survives.
type DepositEvent struct {
	TxId       string `json:"txId"`
	Amount     string `json:"amount"`
	Coin       string `json:"coin"`
	Network    string `json:"network"`
	Status     int    `json:"status"`
	Address    string `json:"address"`
	InsertTime int64  `json:"insertTime"`
}

// DepositAddress is the exchange's deposit address response.
type DepositAddress struct {
	Address string `json:"address"`
	Coin    string `json:"coin"`
	Tag     string `json:"tag"`
	Url     string `json:"url"`
}

// WithdrawalSubmission is the exchange's acknowledgement of a withdrawal
// request. Id is the external transaction identifier.
type WithdrawalSubmission struct {
	Id string `json:"id"`
}

// WithdrawalEvent is a single withdrawal record from the exchange history.
type WithdrawalEvent struct {
	Id              string `json:"id"`
	Amount          string `json:"amount"`
	Address         string `json:"address"`
	Coin            string `json:"coin"`
	Network         string `json:"network"`
	Status          int    `json:"status"`
	TxId            string `json:"txId"`
	ApplyTime       string `json:"applyTime"`
	TransactionFee  string `json:"transactionFee"`
	ConfirmNo       int    `json:"confirmNo"`
	WithdrawOrderId string `json:"withdrawOrderId"`
}
