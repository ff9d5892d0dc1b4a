package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Notification is handed to the delivery channel after a state change commits.
type Notification struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

const (
	TemplateCampaignInvitation = "campaign.invitation"
	TemplateCampaignRemoved    = "campaign.removed"
	TemplateCommissionApproved = "commission.approved"
	TemplateCommissionRejected = "commission.rejected"
	TemplatePayoutOTP          = "payout.otp"
	TemplateWithdrawalPending  = "withdrawal.pending"
	TemplatePayoutPaid         = "payout.paid"
	TemplatePayoutFailed       = "payout.failed"
	TemplatePayoutReversed     = "payout.reversed"
	TemplateWalletCredited     = "wallet.credited"
)

// Notifier delivers notifications; failures never affect the caller's outcome.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// PayoutQueue schedules asynchronous bank disbursement of a payout request.
type PayoutQueue interface {
	EnqueueDisbursement(ctx context.Context, payoutID string) error
}

type DisbursementStatus string

const (
	DisbursementSuccess DisbursementStatus = "success"
	DisbursementPending DisbursementStatus = "pending"
	DisbursementFailed  DisbursementStatus = "failed"
)

type DisbursementRequest struct {
	Reference     string
	Amount        decimal.Decimal
	AccountNumber string
	AccountName   string
	BankCode      string
	RecipientCode string
	Reason        string
}

type DisbursementResult struct {
	Status            DisbursementStatus
	ProviderReference string
	RecipientCode     string
	Message           string
}

// ErrTransferNotFound means the provider holds no transfer under a reference.
var ErrTransferNotFound = errors.New("transfer not found at provider")

// BankGateway resolves account names and sends money to bank accounts.
// VerifyTransfer reports what the provider knows about a reference and
// returns ErrTransferNotFound when it has none.
type BankGateway interface {
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error)
	Disburse(ctx context.Context, req DisbursementRequest) (DisbursementResult, error)
	VerifyTransfer(ctx context.Context, reference string) (DisbursementResult, error)
}

// PointsStore is the points wallet owner; calls join the caller's transaction.
type PointsStore interface {
	Balance(tx *gorm.DB, userID string) (int64, error)
	Debit(tx *gorm.DB, userID string, points int64) error
}

// OTPLimiter throttles OTP issuance per user.
type OTPLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Clock is swapped in tests that depend on expiry or campaign start.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
