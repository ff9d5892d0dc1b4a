package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultCurrency = "NGN"

// GrowviaWallet is the Naira settlement wallet. PendingBalance holds funds
// reserved by payouts that have not yet settled.
type GrowviaWallet struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"column:user_id;size:36;not null;uniqueIndex" json:"user_id"`
	Balance        decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null;default:0.00" json:"balance"`
	PendingBalance decimal.Decimal `gorm:"column:pending_balance;type:decimal(20,2);not null;default:0.00" json:"pending_balance"`
	TotalDeposited decimal.Decimal `gorm:"column:total_deposited;type:decimal(20,2);not null;default:0.00" json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `gorm:"column:total_withdrawn;type:decimal(20,2);not null;default:0.00" json:"total_withdrawn"`
	Currency       string          `gorm:"column:currency;size:10;not null;default:NGN" json:"currency"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (GrowviaWallet) TableName() string {
	return "growvia_wallets"
}

func (w *GrowviaWallet) BeforeCreate(tx *gorm.DB) error {
	assignID(&w.ID)
	return nil
}

type WalletTransactionType string

const (
	TxDeposit          WalletTransactionType = "deposit"
	TxWithdrawal       WalletTransactionType = "withdrawal"
	TxAffiliatePayment WalletTransactionType = "affiliate_payment"
	TxRefund           WalletTransactionType = "refund"
	TxFee              WalletTransactionType = "fee"
)

type WalletTransactionStatus string

const (
	TxPending    WalletTransactionStatus = "pending"
	TxProcessing WalletTransactionStatus = "processing"
	TxCompleted  WalletTransactionStatus = "completed"
	TxFailed     WalletTransactionStatus = "failed"
	TxCancelled  WalletTransactionStatus = "cancelled"
)

type GrowviaWalletTransaction struct {
	ID            string                  `gorm:"primaryKey;size:36" json:"id"`
	WalletID      string                  `gorm:"column:wallet_id;size:36;not null;index" json:"wallet_id"`
	UserID        string                  `gorm:"column:user_id;size:36;not null;index" json:"user_id"`
	Type          WalletTransactionType   `gorm:"column:type;size:30;not null" json:"type"`
	Status        WalletTransactionStatus `gorm:"column:status;size:20;not null" json:"status"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Fee           decimal.Decimal         `gorm:"column:fee;type:decimal(20,2);not null;default:0.00" json:"fee"`
	NetAmount     decimal.Decimal         `gorm:"column:net_amount;type:decimal(20,2);not null" json:"net_amount"`
	BalanceBefore decimal.Decimal         `gorm:"column:balance_before;type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal         `gorm:"column:balance_after;type:decimal(20,2);not null" json:"balance_after"`
	Reference     string                  `gorm:"column:reference;size:80;not null;uniqueIndex" json:"reference"`
	Description   string                  `gorm:"column:description;size:255" json:"description"`
	Metadata      TransactionMetadata     `gorm:"column:metadata;type:text" json:"metadata"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (GrowviaWalletTransaction) TableName() string {
	return "growvia_wallet_transactions"
}

func (t *GrowviaWalletTransaction) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// Effect is the signed change this row applied to the wallet balance.
// Fee rows are memos of a charge already netted out of their parent row.
func (t GrowviaWalletTransaction) Effect() decimal.Decimal {
	if t.Status == TxPending || t.Status == TxCancelled {
		return decimal.Zero
	}
	switch t.Type {
	case TxDeposit, TxRefund, TxAffiliatePayment:
		return t.NetAmount
	case TxWithdrawal:
		return t.Amount.Neg()
	default:
		return decimal.Zero
	}
}
