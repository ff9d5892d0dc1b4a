package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/metrics"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

type WalletService struct {
	DB       *gorm.DB
	Helper   *HelperService
	Access   *Authorizer
	KYC      *KYCService
	Points   PointsStore
	Settings Settings
}

func NewWalletService(db *gorm.DB, helper *HelperService, access *Authorizer, kyc *KYCService, points PointsStore, settings Settings) *WalletService {
	return &WalletService{DB: db, Helper: helper, Access: access, KYC: kyc, Points: points, Settings: settings}
}

func (s *WalletService) GetWallet(ctx context.Context, actor Actor, userID string) (*models.GrowviaWallet, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: userID}, ActionViewWallet); err != nil {
		return nil, err
	}
	var wallet *models.GrowviaWallet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wallet, err = s.Helper.LockWallet(tx, userID)
		return err
	})
	return wallet, err
}

type TransferPointsDTO struct {
	UserID string          `json:"user_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type TransferResult struct {
	Wallet        *models.GrowviaWallet            `json:"wallet"`
	Deposit       *models.GrowviaWalletTransaction `json:"deposit"`
	Fee           *models.GrowviaWalletTransaction `json:"fee"`
	PointsDebited int64                            `json:"points_debited"`
}

// TransferPointsToWallet converts points into Naira settlement balance.
// The points debit, wallet credit, deposit row and fee row commit together.
func (s *WalletService) TransferPointsToWallet(ctx context.Context, actor Actor, data TransferPointsDTO) (*TransferResult, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", data.Amount); err != nil {
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: data.UserID}, ActionTransferPoints); err != nil {
		return nil, err
	}

	amount := data.Amount.Round(2)
	fee := s.Settings.TransferFee(amount)
	if fee.GreaterThanOrEqual(amount) {
		return nil, &common.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("amount is too small to cover the transfer fee of %s", fee.StringFixed(2)),
		}
	}
	net := amount.Sub(fee)
	points := s.Settings.PointsFor(amount)

	result := &TransferResult{PointsDebited: points}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		available, err := s.Points.Balance(tx, data.UserID)
		if err != nil {
			return err
		}
		if available < points {
			return common.NewInsufficientFundsError(fmt.Sprintf("insufficient points balance: %d points required", points))
		}
		if err := s.Points.Debit(tx, data.UserID, points); err != nil {
			return err
		}

		wallet, err := s.Helper.LockWallet(tx, data.UserID)
		if err != nil {
			return err
		}
		if err := s.KYC.CheckPortfolio(tx, data.UserID, wallet.Balance.Add(net)); err != nil {
			return err
		}

		reference := common.GenerateReference("DEP")
		result.Deposit, err = s.Helper.SaveMovement(tx, wallet, MovementData{
			Type:        models.TxDeposit,
			Status:      models.TxCompleted,
			Amount:      amount,
			Fee:         fee,
			NetAmount:   net,
			Reference:   reference,
			Description: "Points transfer to wallet",
			Metadata: models.NewDepositMetadata(models.DepositMetadata{
				PointsDebited:  points,
				PointsPerNaira: s.Settings.PointsPerNaira,
			}),
		})
		if err != nil {
			return err
		}
		result.Fee, err = s.Helper.SaveMovement(tx, wallet, MovementData{
			Type:        models.TxFee,
			Status:      models.TxCompleted,
			Amount:      fee,
			Fee:         decimal.Zero,
			NetAmount:   fee,
			Reference:   reference + "-FEE",
			Description: "Transfer fee",
			Metadata: models.NewFeeMetadata(models.FeeMetadata{
				ParentReference: reference,
				Percent:         s.Settings.TransferFeePercent,
				Minimum:         s.Settings.TransferFeeMinimum,
			}),
		})
		if err != nil {
			return err
		}

		wallet.TotalDeposited = wallet.TotalDeposited.Add(net)
		if err := s.Helper.SaveWallet(tx, wallet); err != nil {
			return err
		}
		result.Wallet = wallet
		return nil
	})
	metrics.RecordWalletOperation("transfer", err)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   data.UserID,
		"amount":    amount.StringFixed(2),
		"fee":       fee.StringFixed(2),
		"points":    points,
		"reference": result.Deposit.Reference,
	}).Info("points transferred to wallet")
	s.Helper.Notify(ctx, Notification{
		UserID:   data.UserID,
		Template: TemplateWalletCredited,
		Data:     map[string]string{"amount": net.StringFixed(2), "reference": result.Deposit.Reference},
	})
	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "wallet.transfer",
		ActorID:    actor.UserID,
		Resource:   "growvia_wallet",
		ResourceID: result.Wallet.ID,
		Details:    map[string]interface{}{"reference": result.Deposit.Reference, "net_amount": net.StringFixed(2)},
	})
	return result, nil
}

type WithdrawToBankDTO struct {
	UserID         string                `json:"user_id" validate:"required"`
	Amount         decimal.Decimal       `json:"amount"`
	Fee            decimal.Decimal       `json:"fee"`
	PayoutMethodID string                `json:"payout_method_id" validate:"required"`
	TransactionID  string                `json:"transaction_id" validate:"required,max=64"`
	Metadata       models.PayoutMetadata `json:"metadata"`
}

// WithdrawToBank reserves the amount in the wallet and opens a pending payout
// request. Balance debit, withdrawal row and payout request commit together.
func (s *WalletService) WithdrawToBank(ctx context.Context, actor Actor, data WithdrawToBankDTO) (*models.PayoutRequest, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", data.Amount); err != nil {
		return nil, err
	}
	if data.Fee.IsNegative() || data.Fee.GreaterThanOrEqual(data.Amount) {
		return nil, &common.ValidationError{Field: "fee", Message: "fee must be less than the withdrawal amount"}
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: data.UserID}, ActionRequestWithdrawal); err != nil {
		return nil, err
	}

	payout := models.PayoutRequest{
		ID:             uuid.NewString(),
		UserID:         data.UserID,
		Amount:         data.Amount,
		Fees:           data.Fee,
		NetAmount:      data.Amount.Sub(data.Fee),
		PayoutMethodID: data.PayoutMethodID,
		TransactionID:  data.TransactionID,
		Status:         models.PayoutPending,
		Type:           models.PayoutWithdrawal,
		Metadata:       data.Metadata,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireVerifiedMethod(tx, data.UserID, data.PayoutMethodID); err != nil {
			return err
		}
		if err := ensureUniqueTransactionID(tx, data.TransactionID); err != nil {
			return err
		}

		wallet, err := s.Helper.LockWallet(tx, data.UserID)
		if err != nil {
			return err
		}
		if err := s.KYC.CheckWithdrawal(tx, data.UserID, data.Amount); err != nil {
			return err
		}
		if wallet.Balance.LessThan(data.Amount) {
			return common.NewInsufficientFundsError("insufficient balance")
		}

		row, err := s.Helper.SaveMovement(tx, wallet, MovementData{
			Type:        models.TxWithdrawal,
			Status:      models.TxProcessing,
			Amount:      data.Amount,
			Fee:         data.Fee,
			NetAmount:   payout.NetAmount,
			Reference:   "WDR-" + data.TransactionID,
			Description: "Withdrawal to bank",
			Metadata: models.NewWithdrawalMetadata(models.WithdrawalMetadata{
				PayoutRequestID: payout.ID,
				PayoutMethodID:  data.PayoutMethodID,
			}),
		})
		if err != nil {
			return err
		}

		wallet.PendingBalance = wallet.PendingBalance.Add(data.Amount)
		if err := s.Helper.SaveWallet(tx, wallet); err != nil {
			return err
		}

		payout.WalletTransactionID = &row.ID
		if err := tx.Create(&payout).Error; err != nil {
			if database.IsDuplicate(err) {
				return common.NewConflictError("duplicate withdrawal request")
			}
			return fmt.Errorf("create payout request: %w", err)
		}
		return nil
	})
	metrics.RecordWalletOperation("withdraw", err)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":        data.UserID,
		"payout_id":      payout.ID,
		"transaction_id": payout.TransactionID,
		"amount":         payout.Amount.StringFixed(2),
	}).Info("withdrawal reserved")
	return &payout, nil
}

type CreditAffiliatePaymentDTO struct {
	UserID    string          `json:"user_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note" validate:"max=255"`
	Reference string          `json:"reference" validate:"max=64"`
}

// CreditAffiliatePayment credits an organization-funded payment straight to the wallet.
func (s *WalletService) CreditAffiliatePayment(ctx context.Context, actor Actor, data CreditAffiliatePaymentDTO) (*models.GrowviaWalletTransaction, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", data.Amount); err != nil {
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: data.UserID}, ActionGrantWallet); err != nil {
		return nil, err
	}
	if data.Reference == "" {
		data.Reference = common.GenerateReference("AFP")
	}

	var row *models.GrowviaWalletTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.Helper.LockWallet(tx, data.UserID)
		if err != nil {
			return err
		}
		if err := s.KYC.CheckPortfolio(tx, data.UserID, wallet.Balance.Add(data.Amount)); err != nil {
			return err
		}
		row, err = s.Helper.SaveMovement(tx, wallet, MovementData{
			Type:        models.TxAffiliatePayment,
			Status:      models.TxCompleted,
			Amount:      data.Amount,
			Fee:         decimal.Zero,
			NetAmount:   data.Amount,
			Reference:   data.Reference,
			Description: "Affiliate payment",
			Metadata: models.NewAffiliatePaymentMetadata(models.AffiliatePaymentMetadata{
				GrantedBy: actor.UserID,
				Note:      data.Note,
			}),
		})
		if err != nil {
			return err
		}
		wallet.TotalDeposited = wallet.TotalDeposited.Add(data.Amount)
		return s.Helper.SaveWallet(tx, wallet)
	})
	metrics.RecordWalletOperation("affiliate_payment", err)
	if err != nil {
		return nil, err
	}

	s.Helper.Notify(ctx, Notification{
		UserID:   data.UserID,
		Template: TemplateWalletCredited,
		Data:     map[string]string{"amount": data.Amount.StringFixed(2), "reference": row.Reference},
	})
	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "wallet.affiliate_payment",
		ActorID:    actor.UserID,
		Resource:   "growvia_wallet",
		ResourceID: row.WalletID,
		Details:    map[string]interface{}{"reference": row.Reference, "amount": data.Amount.StringFixed(2)},
	})
	return row, nil
}

// settleReservation finalizes a paid withdrawal: the reserved amount leaves for good.
func (s *WalletService) settleReservation(tx *gorm.DB, payout *models.PayoutRequest) error {
	if payout.WalletTransactionID == nil {
		return nil
	}
	wallet, err := s.Helper.LockWallet(tx, payout.UserID)
	if err != nil {
		return err
	}
	wallet.PendingBalance = wallet.PendingBalance.Sub(payout.Amount)
	wallet.TotalWithdrawn = wallet.TotalWithdrawn.Add(payout.Amount)
	if err := s.Helper.SaveWallet(tx, wallet); err != nil {
		return err
	}
	return setTransactionStatus(tx, *payout.WalletTransactionID, models.TxProcessing, models.TxCompleted)
}

// releaseReservation compensates a failed withdrawal with a refund row.
func (s *WalletService) releaseReservation(tx *gorm.DB, payout *models.PayoutRequest, reason string) error {
	if payout.WalletTransactionID == nil {
		return nil
	}
	wallet, err := s.Helper.LockWallet(tx, payout.UserID)
	if err != nil {
		return err
	}
	wallet.PendingBalance = wallet.PendingBalance.Sub(payout.Amount)
	if _, err := s.Helper.SaveMovement(tx, wallet, refundMovement(payout, "RFD-", "Refund for failed withdrawal", reason)); err != nil {
		return err
	}
	if err := s.Helper.SaveWallet(tx, wallet); err != nil {
		return err
	}
	return setTransactionStatus(tx, *payout.WalletTransactionID, models.TxProcessing, models.TxFailed)
}

// refundSettled returns the amount of a paid withdrawal that the bank sent back.
func (s *WalletService) refundSettled(tx *gorm.DB, payout *models.PayoutRequest, reason string) error {
	if payout.WalletTransactionID == nil {
		return nil
	}
	wallet, err := s.Helper.LockWallet(tx, payout.UserID)
	if err != nil {
		return err
	}
	if _, err := s.Helper.SaveMovement(tx, wallet, refundMovement(payout, "RVS-", "Refund for reversed withdrawal", reason)); err != nil {
		return err
	}
	return s.Helper.SaveWallet(tx, wallet)
}

func refundMovement(payout *models.PayoutRequest, prefix, description, reason string) MovementData {
	return MovementData{
		Type:        models.TxRefund,
		Status:      models.TxCompleted,
		Amount:      payout.Amount,
		Fee:         decimal.Zero,
		NetAmount:   payout.Amount,
		Reference:   prefix + payout.TransactionID,
		Description: description,
		Metadata: models.NewRefundMetadata(models.RefundMetadata{
			PayoutRequestID: payout.ID,
			Reason:          reason,
		}),
	}
}

func setTransactionStatus(tx *gorm.DB, id string, from, to models.WalletTransactionStatus) error {
	res := tx.Model(&models.GrowviaWalletTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NewStateError("wallet transaction is no longer %s", from)
	}
	return nil
}

func (s *WalletService) ListTransactions(ctx context.Context, actor Actor, userID string, txType models.WalletTransactionType, page, limit int) (common.PaginationResult, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: userID}, ActionViewWallet); err != nil {
		return common.PaginationResult{}, err
	}
	page, limit, offset := common.NormalizePage(page, limit)

	query := s.DB.WithContext(ctx).Model(&models.GrowviaWalletTransaction{}).Where("user_id = ?", userID)
	if txType != "" {
		query = query.Where("type = ?", txType)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}
	var rows []models.GrowviaWalletTransaction
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(rows, total, page, limit, ""), nil
}

type Reconciliation struct {
	UserID        string          `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	BrokenRows    []string        `json:"broken_rows,omitempty"`
	Balanced      bool            `json:"balanced"`
}

// Reconcile recomputes the balance from transaction rows and checks every
// row's before/after snapshot.
func (s *WalletService) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	db := s.DB.WithContext(ctx)
	var wallet models.GrowviaWallet
	if err := db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("wallet")
		}
		return nil, err
	}
	var rows []models.GrowviaWalletTransaction
	if err := db.Where("wallet_id = ?", wallet.ID).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := &Reconciliation{UserID: userID, WalletBalance: wallet.Balance, LedgerBalance: decimal.Zero}
	for _, r := range rows {
		effect := r.Effect()
		out.LedgerBalance = out.LedgerBalance.Add(effect)
		if !r.BalanceBefore.Add(effect).Equal(r.BalanceAfter) {
			out.BrokenRows = append(out.BrokenRows, r.Reference)
		}
	}
	out.Balanced = len(out.BrokenRows) == 0 && out.LedgerBalance.Equal(out.WalletBalance)
	if !out.Balanced {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"wallet":  out.WalletBalance.StringFixed(2),
			"ledger":  out.LedgerBalance.StringFixed(2),
		}).Error("wallet reconciliation mismatch")
	}
	return out, nil
}

func requireVerifiedMethod(tx *gorm.DB, userID, methodID string) error {
	var method models.PayoutMethod
	if err := tx.Where("id = ? AND user_id = ?", methodID, userID).First(&method).Error; err != nil {
		if database.IsNotFound(err) {
			return common.NewNotFoundError("payout method")
		}
		return err
	}
	if !method.IsVerified {
		return common.NewStateError("payout method not verified")
	}
	return nil
}

func ensureUniqueTransactionID(tx *gorm.DB, transactionID string) error {
	var count int64
	if err := tx.Model(&models.PayoutRequest{}).Where("transaction_id = ?", transactionID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return common.NewConflictError("duplicate withdrawal request")
	}
	return nil
}
