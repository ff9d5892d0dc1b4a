package services

import (
	"time"

	"github.com/shopspring/decimal"
)

type Settings struct {
	PointsPerNaira       int64
	TransferFeePercent   decimal.Decimal
	TransferFeeMinimum   decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
	WithdrawalFeeCap     decimal.Decimal
	MinimumWithdrawal    decimal.Decimal
	OTPTTL               time.Duration
	OTPLength            int
}

func DefaultSettings() Settings {
	return Settings{
		PointsPerNaira:       100,
		TransferFeePercent:   decimal.RequireFromString("1.5"),
		TransferFeeMinimum:   decimal.NewFromInt(50),
		WithdrawalFeePercent: decimal.RequireFromString("1.5"),
		WithdrawalFeeCap:     decimal.NewFromInt(1000),
		MinimumWithdrawal:    decimal.NewFromInt(5000),
		OTPTTL:               10 * time.Minute,
		OTPLength:            6,
	}
}

var hundred = decimal.NewFromInt(100)

// TransferFee is percent of amount with a floor and no cap.
func (s Settings) TransferFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(s.TransferFeePercent).Div(hundred).Round(2)
	if fee.LessThan(s.TransferFeeMinimum) {
		return s.TransferFeeMinimum
	}
	return fee
}

// WithdrawalFee is percent of amount capped at WithdrawalFeeCap.
func (s Settings) WithdrawalFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(s.WithdrawalFeePercent).Div(hundred).Round(2)
	if fee.GreaterThan(s.WithdrawalFeeCap) {
		return s.WithdrawalFeeCap
	}
	return fee
}

// PointsFor converts a Naira amount into the points it costs, rounding up.
func (s Settings) PointsFor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(s.PointsPerNaira)).Ceil().IntPart()
}
