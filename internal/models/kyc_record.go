package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type KYCTier string

const (
	TierSprout KYCTier = "sprout"
	TierBloom  KYCTier = "bloom"
	TierThrive KYCTier = "thrive"
)

// Rank orders tiers so upgrades can be checked.
func (t KYCTier) Rank() int {
	switch t {
	case TierBloom:
		return 1
	case TierThrive:
		return 2
	default:
		return 0
	}
}

type KYCStatus string

const (
	KYCPending     KYCStatus = "pending"
	KYCApproved    KYCStatus = "approved"
	KYCRejected    KYCStatus = "rejected"
	KYCUnderReview KYCStatus = "under_review"
)

type KYCRecord struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	UserID               string          `gorm:"column:user_id;size:36;not null;uniqueIndex" json:"user_id"`
	Tier                 KYCTier         `gorm:"column:tier;size:20;not null;default:sprout" json:"tier"`
	Status               KYCStatus       `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	EmailVerified        bool            `gorm:"column:email_verified;default:false" json:"email_verified"`
	BVNVerified          bool            `gorm:"column:bvn_verified;default:false" json:"bvn_verified"`
	DocumentsApproved    bool            `gorm:"column:documents_approved;default:false" json:"documents_approved"`
	DailyPurchaseLimit   decimal.Decimal `gorm:"column:daily_purchase_limit;type:decimal(20,2);not null" json:"daily_purchase_limit"`
	PortfolioMaxBalance  decimal.Decimal `gorm:"column:portfolio_max_balance;type:decimal(20,2);not null" json:"portfolio_max_balance"`
	MaxWithdrawalAmount  decimal.Decimal `gorm:"column:max_withdrawal_amount;type:decimal(20,2);not null" json:"max_withdrawal_amount"`
	DailyWithdrawalLimit decimal.Decimal `gorm:"column:daily_withdrawal_limit;type:decimal(20,2);not null" json:"daily_withdrawal_limit"`
	WithdrawalsEnabled   bool            `gorm:"column:withdrawals_enabled;default:false" json:"withdrawals_enabled"`
	RejectionReason      *string         `gorm:"column:rejection_reason;size:500" json:"rejection_reason,omitempty"`
	ReviewedBy           *string         `gorm:"column:reviewed_by;size:36" json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (KYCRecord) TableName() string {
	return "kyc_records"
}

func (k *KYCRecord) BeforeCreate(tx *gorm.DB) error {
	assignID(&k.ID)
	return nil
}
