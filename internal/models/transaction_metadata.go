package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

type DepositMetadata struct {
	PointsDebited  int64 `json:"points_debited"`
	PointsPerNaira int64 `json:"points_per_naira"`
}

type FeeMetadata struct {
	ParentReference string          `json:"parent_reference"`
	Percent         decimal.Decimal `json:"percent"`
	Minimum         decimal.Decimal `json:"minimum"`
}

type WithdrawalMetadata struct {
	PayoutRequestID string `json:"payout_request_id"`
	PayoutMethodID  string `json:"payout_method_id"`
}

type RefundMetadata struct {
	PayoutRequestID string `json:"payout_request_id"`
	Reason          string `json:"reason"`
}

type AffiliatePaymentMetadata struct {
	GrantedBy string `json:"granted_by"`
	Note      string `json:"note"`
}

// TransactionMetadata holds exactly one variant, selected by Kind.
type TransactionMetadata struct {
	Kind             WalletTransactionType     `json:"kind"`
	Deposit          *DepositMetadata          `json:"deposit,omitempty"`
	Fee              *FeeMetadata              `json:"fee,omitempty"`
	Withdrawal       *WithdrawalMetadata       `json:"withdrawal,omitempty"`
	Refund           *RefundMetadata           `json:"refund,omitempty"`
	AffiliatePayment *AffiliatePaymentMetadata `json:"affiliate_payment,omitempty"`
}

func NewDepositMetadata(m DepositMetadata) TransactionMetadata {
	return TransactionMetadata{Kind: TxDeposit, Deposit: &m}
}

func NewFeeMetadata(m FeeMetadata) TransactionMetadata {
	return TransactionMetadata{Kind: TxFee, Fee: &m}
}

func NewWithdrawalMetadata(m WithdrawalMetadata) TransactionMetadata {
	return TransactionMetadata{Kind: TxWithdrawal, Withdrawal: &m}
}

func NewRefundMetadata(m RefundMetadata) TransactionMetadata {
	return TransactionMetadata{Kind: TxRefund, Refund: &m}
}

func NewAffiliatePaymentMetadata(m AffiliatePaymentMetadata) TransactionMetadata {
	return TransactionMetadata{Kind: TxAffiliatePayment, AffiliatePayment: &m}
}

// Validate checks that the populated variant matches Kind.
func (m TransactionMetadata) Validate() error {
	set := 0
	var kind WalletTransactionType
	if m.Deposit != nil {
		set++
		kind = TxDeposit
	}
	if m.Fee != nil {
		set++
		kind = TxFee
	}
	if m.Withdrawal != nil {
		set++
		kind = TxWithdrawal
	}
	if m.Refund != nil {
		set++
		kind = TxRefund
	}
	if m.AffiliatePayment != nil {
		set++
		kind = TxAffiliatePayment
	}
	if set != 1 {
		return fmt.Errorf("metadata must carry exactly one variant, got %d", set)
	}
	if kind != m.Kind {
		return fmt.Errorf("metadata kind %q does not match %q variant", m.Kind, kind)
	}
	return nil
}

func (m TransactionMetadata) Value() (driver.Value, error) {
	return valueJSON(m)
}

func (m *TransactionMetadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}
