package models

import (
	"time"

	"gorm.io/gorm"
)

// The models below are owned by the campaign, organization and points
// services; this service only reads them (and debits points wallets).

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
)

type Campaign struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string         `gorm:"column:organization_id;size:36;not null;index" json:"organization_id"`
	Name           string         `gorm:"column:name;size:255;not null" json:"name"`
	Status         CampaignStatus `gorm:"column:status;size:20;not null;default:draft" json:"status"`
	StartDate      *time.Time     `gorm:"column:start_date" json:"start_date,omitempty"`
	MaxAffiliates  int            `gorm:"column:max_affiliates;default:0" json:"max_affiliates"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// Started reports whether the campaign has begun at the given instant.
func (c Campaign) Started(now time.Time) bool {
	return c.StartDate != nil && !c.StartDate.After(now)
}

type OrganizationRole string

const (
	RoleAdmin      OrganizationRole = "admin"
	RoleManagement OrganizationRole = "management"
	RoleMarketer   OrganizationRole = "marketer"
)

type OrganizationMember struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string           `gorm:"column:organization_id;size:36;not null;uniqueIndex:idx_org_member" json:"organization_id"`
	UserID         string           `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_org_member" json:"user_id"`
	Role           OrganizationRole `gorm:"column:role;size:20;not null" json:"role"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrganizationMember) TableName() string {
	return "organization_members"
}

func (m *OrganizationMember) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}

type PointsWallet struct {
	UserID    string    `gorm:"primaryKey;column:user_id;size:36" json:"user_id"`
	Balance   int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PointsWallet) TableName() string {
	return "points_wallets"
}
