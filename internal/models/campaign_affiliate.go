package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AffiliateStatus string

const (
	AffiliatePending   AffiliateStatus = "pending"
	AffiliateActive    AffiliateStatus = "active"
	AffiliateInactive  AffiliateStatus = "inactive"
	AffiliateSuspended AffiliateStatus = "suspended"
	AffiliateRemoved   AffiliateStatus = "removed"
)

// CampaignAffiliate is the participation record of a marketer in a campaign.
// One row per (campaign, user); removal after campaign start keeps the row.
type CampaignAffiliate struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	CampaignID         string          `gorm:"column:campaign_id;size:36;not null;uniqueIndex:idx_campaign_affiliate" json:"campaign_id"`
	UserID             string          `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_campaign_affiliate;index" json:"user_id"`
	OrganizationID     string          `gorm:"column:organization_id;size:36;not null;index" json:"organization_id"`
	AssignedBy         string          `gorm:"column:assigned_by;size:36;not null" json:"assigned_by"`
	AssignedAt         time.Time       `gorm:"column:assigned_at;not null" json:"assigned_at"`
	Status             AffiliateStatus `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	RemovedBy          *string         `gorm:"column:removed_by;size:36" json:"removed_by,omitempty"`
	RemovedAt          *time.Time      `gorm:"column:removed_at" json:"removed_at,omitempty"`
	RemovalReason      *string         `gorm:"column:removal_reason;size:500" json:"removal_reason,omitempty"`
	ParticipationNotes string          `gorm:"column:participation_notes;type:text" json:"participation_notes"`
	KYCVerified        bool            `gorm:"column:kyc_verified;default:false" json:"kyc_verified"`
	Clicks             int64           `gorm:"column:clicks;default:0" json:"clicks"`
	Conversions        int64           `gorm:"column:conversions;default:0" json:"conversions"`
	TotalRevenue       decimal.Decimal `gorm:"column:total_revenue;type:decimal(20,2);default:0.00" json:"total_revenue"`
	TotalCommission    decimal.Decimal `gorm:"column:total_commission;type:decimal(20,2);default:0.00" json:"total_commission"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CampaignAffiliate) TableName() string {
	return "campaign_affiliates"
}

func (a *CampaignAffiliate) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
