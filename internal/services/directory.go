package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"growvia-service/internal/database"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

// Directory reads campaigns and organization membership owned by other services.
type Directory interface {
	Campaign(ctx context.Context, id string) (*models.Campaign, error)
	// Membership returns nil without error when the user is not a member.
	Membership(ctx context.Context, organizationID, userID string) (*models.OrganizationMember, error)
}

type GormDirectory struct {
	DB *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{DB: db}
}

func (d *GormDirectory) Campaign(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := d.DB.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("campaign")
		}
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	return &campaign, nil
}

func (d *GormDirectory) Membership(ctx context.Context, organizationID, userID string) (*models.OrganizationMember, error) {
	var member models.OrganizationMember
	err := d.DB.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", organizationID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return &member, nil
}

// GormPointsStore debits the points wallet table inside the caller's transaction.
type GormPointsStore struct{}

func (GormPointsStore) Balance(tx *gorm.DB, userID string) (int64, error) {
	var wallet models.PointsWallet
	err := database.ForUpdate(tx).Where("user_id = ?", userID).First(&wallet).Error
	if database.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load points wallet: %w", err)
	}
	return wallet.Balance, nil
}

func (GormPointsStore) Debit(tx *gorm.DB, userID string, points int64) error {
	res := tx.Model(&models.PointsWallet{}).
		Where("user_id = ? AND balance >= ?", userID, points).
		UpdateColumn("balance", gorm.Expr("balance - ?", points))
	if res.Error != nil {
		return fmt.Errorf("debit points: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.NewInsufficientFundsError("insufficient points balance")
	}
	return nil
}
