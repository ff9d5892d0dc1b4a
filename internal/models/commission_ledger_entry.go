package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionRejected CommissionStatus = "rejected"
	CommissionPaid     CommissionStatus = "paid"
)

type CommissionType string

const (
	CommissionClick  CommissionType = "click"
	CommissionLead   CommissionType = "lead"
	CommissionSale   CommissionType = "sale"
	CommissionSignup CommissionType = "signup"
)

type CommissionLedgerEntry struct {
	ID                string           `gorm:"primaryKey;size:36" json:"id"`
	UserID            string           `gorm:"column:user_id;size:36;not null;index:idx_commission_user_status" json:"user_id"`
	CampaignID        string           `gorm:"column:campaign_id;size:36;not null;index" json:"campaign_id"`
	OrganizationID    string           `gorm:"column:organization_id;size:36;not null;index" json:"organization_id"`
	CommissionModelID string           `gorm:"column:commission_model_id;size:36" json:"commission_model_id"`
	Type              CommissionType   `gorm:"column:type;size:20;not null" json:"type"`
	Amount            decimal.Decimal  `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	ConversionValue   decimal.Decimal  `gorm:"column:conversion_value;type:decimal(20,2);default:0.00" json:"conversion_value"`
	ConversionID      string           `gorm:"column:conversion_id;size:100;not null;uniqueIndex" json:"conversion_id"`
	Status            CommissionStatus `gorm:"column:status;size:20;not null;default:pending;index:idx_commission_user_status" json:"status"`
	ApprovalStatus    CommissionStatus `gorm:"column:approval_status;size:20;not null;default:pending" json:"approval_status"`
	ApprovedBy        *string          `gorm:"column:approved_by;size:36" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time       `gorm:"column:approved_at" json:"approved_at,omitempty"`
	RejectionReason   *string          `gorm:"column:rejection_reason;size:500" json:"rejection_reason,omitempty"`
	PaidAt            *time.Time       `gorm:"column:paid_at" json:"paid_at,omitempty"`
	PayoutRequestID   *string          `gorm:"column:payout_request_id;size:36;index" json:"payout_request_id,omitempty"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CommissionLedgerEntry) TableName() string {
	return "commission_ledger_entries"
}

func (e *CommissionLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}
