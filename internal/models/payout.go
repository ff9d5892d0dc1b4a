package models

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

type PayoutMethod struct {
	ID                 string             `gorm:"primaryKey;size:36" json:"id"`
	UserID             string             `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_payout_method_account" json:"user_id"`
	BankCode           string             `gorm:"column:bank_code;size:20;not null;uniqueIndex:idx_payout_method_account" json:"bank_code"`
	BankName           string             `gorm:"column:bank_name;size:150" json:"bank_name"`
	AccountNumber      string             `gorm:"column:account_number;size:20;not null;uniqueIndex:idx_payout_method_account" json:"account_number"`
	AccountName        string             `gorm:"column:account_name;size:250" json:"account_name"`
	RecipientCode      string             `gorm:"column:recipient_code;size:150" json:"-"`
	IsDefault          bool               `gorm:"column:is_default;default:false" json:"is_default"`
	IsVerified         bool               `gorm:"column:is_verified;default:false" json:"is_verified"`
	VerificationStatus VerificationStatus `gorm:"column:verification_status;size:20;not null;default:pending" json:"verification_status"`
	VerifiedAt         *time.Time         `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PayoutMethod) TableName() string {
	return "payout_methods"
}

func (m *PayoutMethod) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}

// PayoutOTP is single-use and short-lived; at most one row per (user, method).
type PayoutOTP struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_payout_otp_pair" json:"user_id"`
	PayoutMethodID string    `gorm:"column:payout_method_id;size:36;not null;uniqueIndex:idx_payout_otp_pair" json:"payout_method_id"`
	OTP            string    `gorm:"column:otp;size:10;not null" json:"-"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
	Verified       bool      `gorm:"column:verified;default:false" json:"verified"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PayoutOTP) TableName() string {
	return "payout_otps"
}

func (o *PayoutOTP) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
	PayoutReversed   PayoutStatus = "reversed"
)

type PayoutType string

const (
	PayoutWithdrawal PayoutType = "withdrawal"
	PayoutManual     PayoutType = "manual_payout"
	PayoutBonus      PayoutType = "bonus_payout"
)

type PayoutMetadata struct {
	CommissionEntryIDs []string `json:"commission_entry_ids,omitempty"`
	RequestedBy        string   `json:"requested_by,omitempty"`
	Note               string   `json:"note,omitempty"`
}

func (m PayoutMetadata) Value() (driver.Value, error) {
	return valueJSON(m)
}

func (m *PayoutMetadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}

type PayoutRequest struct {
	ID                  string          `gorm:"primaryKey;size:36" json:"id"`
	UserID              string          `gorm:"column:user_id;size:36;not null;index" json:"user_id"`
	Amount              decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Fees                decimal.Decimal `gorm:"column:fees;type:decimal(20,2);not null;default:0.00" json:"fees"`
	NetAmount           decimal.Decimal `gorm:"column:net_amount;type:decimal(20,2);not null" json:"net_amount"`
	PayoutMethodID      string          `gorm:"column:payout_method_id;size:36;not null;index" json:"payout_method_id"`
	TransactionID       string          `gorm:"column:transaction_id;size:64;not null;uniqueIndex" json:"transaction_id"`
	WalletTransactionID *string         `gorm:"column:wallet_transaction_id;size:36" json:"wallet_transaction_id,omitempty"`
	Status              PayoutStatus    `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	Type                PayoutType      `gorm:"column:type;size:20;not null" json:"type"`
	ProviderReference   string          `gorm:"column:provider_reference;size:150" json:"provider_reference,omitempty"`
	FailureReason       string          `gorm:"column:failure_reason;size:500" json:"failure_reason,omitempty"`
	Metadata            PayoutMetadata  `gorm:"column:metadata;type:text" json:"metadata"`
	ProcessedAt         *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	PaidAt              *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	FailedAt            *time.Time      `gorm:"column:failed_at" json:"failed_at,omitempty"`
	ReversedAt          *time.Time      `gorm:"column:reversed_at" json:"reversed_at,omitempty"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PayoutRequest) TableName() string {
	return "payout_requests"
}

func (p *PayoutRequest) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
