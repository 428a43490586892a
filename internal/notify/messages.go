package notify

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Message builders for the deposit and withdrawal flows. Amounts are
// always rendered with two decimal places because the deposit amount is
// the matching key users must send exactly.

func DepositInstructions(name, coin, network, address string, amount decimal.Decimal, ttlMinutes int) (string, string) {
	subject := "Deposit Request Created"
	body := fmt.Sprintf(`Dear %s,

Your deposit request has been created successfully.

Deposit Instructions:
- Coin: %s
- Network: %s
- Address: %s
- Exact Amount: %s %s

IMPORTANT: Please send EXACTLY %s %s to ensure automatic processing.

This deposit request will expire in %d minutes.

Best regards,
BMX Adventure Team`,
		name, coin, network, address,
		amount.StringFixed(2), coin, amount.StringFixed(2), coin, ttlMinutes)
	return subject, body
}

func DepositConfirmed(name, coin, txId string, amount decimal.Decimal) (string, string) {
	subject := "Deposit Confirmed - Account Activated"
	body := fmt.Sprintf(`Dear %s,

Great news! Your deposit of %s %s has been confirmed.

Your account is now activated and you can start earning rewards!

Transaction ID: %s

Best regards,
BMX Adventure Team`,
		name, amount.StringFixed(2), coin, txId)
	return subject, body
}

func DepositConfirmedOperator(name, email, coin, txId string, amount decimal.Decimal) (string, string) {
	subject := "New Deposit Confirmed"
	body := fmt.Sprintf(`Hello Admin,

A new deposit has been confirmed and processed automatically.

User: %s
Email: %s
Amount: %s %s
Transaction ID: %s

The user has been marked as eligible.

Best regards,
BMX Adventure System`,
		name, email, amount.StringFixed(2), coin, txId)
	return subject, body
}

func WithdrawalRequested(name, coin string, amount decimal.Decimal) (string, string) {
	subject := "Withdrawal Request Submitted"
	body := fmt.Sprintf(`Dear %s,

We have received your withdrawal request of %s %s. Our team will process your request soon.

If you have any queries, feel free to contact our support team.

Best regards,
BMX Adventure Team`,
		name, amount.StringFixed(2), coin)
	return subject, body
}

func WithdrawalRequestedOperator(name, email, coin string, amount decimal.Decimal) (string, string) {
	subject := "New Withdrawal Request Submitted"
	body := fmt.Sprintf(`Hello Admin,

A new withdrawal request has been submitted.

User: %s
Email: %s
Amount: %s %s

Please review and process the request accordingly.

Best regards,
BMX Adventure System`,
		name, email, amount.StringFixed(2), coin)
	return subject, body
}

func WithdrawalStatusChanged(name, coin, status string, amount decimal.Decimal) (string, string) {
	subject := "Your Withdrawal Request Status Update"
	var line string
	switch status {
	case "Approved":
		line = fmt.Sprintf("Congratulations! Your withdrawal request of %s %s has been approved. The amount will be processed shortly.",
			amount.StringFixed(2), coin)
	case "Rejected":
		line = fmt.Sprintf("Unfortunately, your withdrawal request of %s %s has been rejected. Please contact support for further details.",
			amount.StringFixed(2), coin)
	default:
		line = fmt.Sprintf("Your withdrawal request of %s %s is currently pending. Our team will review and update you soon.",
			amount.StringFixed(2), coin)
	}
	body := fmt.Sprintf(`Dear %s,

%s

Best regards,
BMX Adventure Team`, name, line)
	return subject, body
}
