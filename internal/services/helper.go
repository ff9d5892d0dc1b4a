package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

// HelperService holds the pieces shared by every financial service: wallet
// row bookkeeping inside a transaction, and the post-commit side effects.
type HelperService struct {
	DB       *gorm.DB
	Notifier Notifier
	Audit    audit.Sink
	Now      Clock
}

func NewHelperService(db *gorm.DB, notifier Notifier, sink audit.Sink) *HelperService {
	if sink == nil {
		sink = audit.NewLogSink(nil)
	}
	return &HelperService{DB: db, Notifier: notifier, Audit: sink, Now: systemClock}
}

// MovementData describes one wallet transaction row to append.
type MovementData struct {
	Type        models.WalletTransactionType
	Status      models.WalletTransactionStatus
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	NetAmount   decimal.Decimal
	Reference   string
	Description string
	Metadata    models.TransactionMetadata
}

// LockWallet loads the user's wallet under a row lock, creating it on first use.
func (s *HelperService) LockWallet(tx *gorm.DB, userID string) (*models.GrowviaWallet, error) {
	var wallet models.GrowviaWallet
	err := database.ForUpdate(tx).Where("user_id = ?", userID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	wallet = models.GrowviaWallet{
		UserID:         userID,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		TotalDeposited: decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		Currency:       models.DefaultCurrency,
	}
	err = tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&wallet).Error
	})
	if err != nil {
		if !database.IsDuplicate(err) {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
		// Another transaction created it first.
		if err := database.ForUpdate(tx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return nil, fmt.Errorf("lock wallet: %w", err)
		}
	}
	return &wallet, nil
}

// SaveMovement appends a transaction row with balance snapshots and applies
// its effect to the in-memory wallet. The caller persists the wallet with
// SaveWallet before the transaction commits.
func (s *HelperService) SaveMovement(tx *gorm.DB, wallet *models.GrowviaWallet, data MovementData) (*models.GrowviaWalletTransaction, error) {
	if err := data.Metadata.Validate(); err != nil {
		return nil, err
	}
	if data.Reference == "" {
		data.Reference = common.GenerateReference("GVW")
	}

	row := models.GrowviaWalletTransaction{
		WalletID:      wallet.ID,
		UserID:        wallet.UserID,
		Type:          data.Type,
		Status:        data.Status,
		Amount:        data.Amount,
		Fee:           data.Fee,
		NetAmount:     data.NetAmount,
		BalanceBefore: wallet.Balance,
		Reference:     data.Reference,
		Description:   data.Description,
		Metadata:      data.Metadata,
	}
	row.BalanceAfter = wallet.Balance.Add(row.Effect())
	if row.BalanceAfter.IsNegative() {
		return nil, common.NewInsufficientFundsError("insufficient balance")
	}

	if err := tx.Create(&row).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, common.NewConflictError("duplicate transaction reference")
		}
		return nil, fmt.Errorf("save wallet transaction: %w", err)
	}
	wallet.Balance = row.BalanceAfter
	return &row, nil
}

func (s *HelperService) SaveWallet(tx *gorm.DB, wallet *models.GrowviaWallet) error {
	if wallet.Balance.IsNegative() || wallet.PendingBalance.IsNegative() {
		return fmt.Errorf("wallet %s would go negative", wallet.ID)
	}
	err := tx.Model(&models.GrowviaWallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
		"balance":         wallet.Balance,
		"pending_balance": wallet.PendingBalance,
		"total_deposited": wallet.TotalDeposited,
		"total_withdrawn": wallet.TotalWithdrawn,
	}).Error
	if err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}
	return nil
}

// Notify delivers a notification; failures are logged and dropped.
func (s *HelperService) Notify(ctx context.Context, n Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":  n.UserID,
			"template": n.Template,
		}).Warn("notification dispatch failed")
	}
}

// RecordAudit sends an audit entry; failures are logged and dropped.
func (s *HelperService) RecordAudit(ctx context.Context, entry audit.Entry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.Now()
	}
	if err := s.Audit.Record(ctx, entry); err != nil {
		logrus.WithError(err).WithField("action", entry.Action).Warn("audit record failed")
	}
}
