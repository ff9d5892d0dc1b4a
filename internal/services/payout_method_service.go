package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/metrics"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

type PayoutMethodService struct {
	DB       *gorm.DB
	Helper   *HelperService
	Access   *Authorizer
	Gateway  BankGateway
	Limiter  OTPLimiter
	Settings Settings
}

func NewPayoutMethodService(db *gorm.DB, helper *HelperService, access *Authorizer, gateway BankGateway, limiter OTPLimiter, settings Settings) *PayoutMethodService {
	return &PayoutMethodService{DB: db, Helper: helper, Access: access, Gateway: gateway, Limiter: limiter, Settings: settings}
}

type AddPayoutMethodDTO struct {
	UserID        string `json:"user_id" validate:"required"`
	BankCode      string `json:"bank_code" validate:"required,max=20"`
	BankName      string `json:"bank_name" validate:"max=150"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
}

// AddMethod registers a bank account after resolving its holder name.
// The first method a user adds becomes the default.
func (s *PayoutMethodService) AddMethod(ctx context.Context, actor Actor, data AddPayoutMethodDTO) (*models.PayoutMethod, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: data.UserID}, ActionManagePayoutMethod); err != nil {
		return nil, err
	}

	accountName, err := s.Gateway.ResolveAccount(ctx, data.AccountNumber, data.BankCode)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":   data.UserID,
			"bank_code": data.BankCode,
			"account":   common.MaskAccountNumber(data.AccountNumber),
		}).Warn("account resolution failed")
		return nil, &common.ValidationError{Field: "account_number", Message: "could not resolve bank account", Cause: err}
	}

	method := models.PayoutMethod{
		UserID:             data.UserID,
		BankCode:           data.BankCode,
		BankName:           data.BankName,
		AccountNumber:      data.AccountNumber,
		AccountName:        accountName,
		VerificationStatus: models.VerificationPending,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.PayoutMethod{}).Where("user_id = ?", data.UserID).Count(&existing).Error; err != nil {
			return err
		}
		var dup int64
		if err := tx.Model(&models.PayoutMethod{}).
			Where("user_id = ? AND bank_code = ? AND account_number = ?", data.UserID, data.BankCode, data.AccountNumber).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return common.NewConflictError("this bank account is already registered")
		}
		method.IsDefault = existing == 0
		if err := tx.Create(&method).Error; err != nil {
			if database.IsDuplicate(err) {
				return common.NewConflictError("this bank account is already registered")
			}
			return fmt.Errorf("create payout method: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "payout_method.add",
		ActorID:    actor.UserID,
		Resource:   "payout_method",
		ResourceID: method.ID,
		Details:    map[string]interface{}{"bank_code": method.BankCode, "account": common.MaskAccountNumber(method.AccountNumber)},
	})
	return &method, nil
}

func (s *PayoutMethodService) ListMethods(ctx context.Context, actor Actor, userID string) ([]models.PayoutMethod, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: userID}, ActionManagePayoutMethod); err != nil {
		return nil, err
	}
	var methods []models.PayoutMethod
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default desc").Order("created_at asc").
		Find(&methods).Error
	return methods, err
}

// owned loads a method and checks the actor may manage it.
func (s *PayoutMethodService) owned(ctx context.Context, db *gorm.DB, actor Actor, methodID string) (*models.PayoutMethod, error) {
	var method models.PayoutMethod
	if err := db.Where("id = ?", methodID).First(&method).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("payout method")
		}
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: method.UserID}, ActionManagePayoutMethod); err != nil {
		return nil, err
	}
	return &method, nil
}

func (s *PayoutMethodService) SetDefault(ctx context.Context, actor Actor, methodID string) (*models.PayoutMethod, error) {
	var method *models.PayoutMethod
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		method, err = s.owned(ctx, tx, actor, methodID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PayoutMethod{}).
			Where("user_id = ? AND id <> ?", method.UserID, method.ID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		method.IsDefault = true
		return tx.Model(&models.PayoutMethod{}).Where("id = ?", method.ID).Update("is_default", true).Error
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// RemoveMethod deletes a method not referenced by an in-flight payout. When
// the default goes, the oldest remaining method takes its place.
func (s *PayoutMethodService) RemoveMethod(ctx context.Context, actor Actor, methodID string) error {
	var method *models.PayoutMethod
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		method, err = s.owned(ctx, tx, actor, methodID)
		if err != nil {
			return err
		}

		var inFlight int64
		if err := tx.Model(&models.PayoutRequest{}).
			Where("payout_method_id = ? AND status IN ?", method.ID, []models.PayoutStatus{models.PayoutPending, models.PayoutProcessing}).
			Count(&inFlight).Error; err != nil {
			return err
		}
		if inFlight > 0 {
			return common.NewStateError("payout method is used by a payout in progress")
		}

		if err := tx.Where("payout_method_id = ?", method.ID).Delete(&models.PayoutOTP{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.PayoutMethod{}, "id = ?", method.ID).Error; err != nil {
			return err
		}
		if !method.IsDefault {
			return nil
		}

		var next models.PayoutMethod
		err = tx.Where("user_id = ?", method.UserID).Order("created_at asc").Order("id asc").First(&next).Error
		if database.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&models.PayoutMethod{}).Where("id = ?", next.ID).Update("is_default", true).Error
	})
	if err != nil {
		return err
	}

	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "payout_method.remove",
		ActorID:    actor.UserID,
		Resource:   "payout_method",
		ResourceID: method.ID,
	})
	return nil
}

// SendOTP issues a fresh verification code for a method, replacing any
// earlier one. Only the expiry is returned; the code travels by notification.
func (s *PayoutMethodService) SendOTP(ctx context.Context, actor Actor, methodID string) (time.Time, error) {
	method, err := s.owned(ctx, s.DB.WithContext(ctx), actor, methodID)
	if err != nil {
		return time.Time{}, err
	}
	if method.IsVerified {
		return time.Time{}, common.NewStateError("payout method is already verified")
	}
	if s.Limiter != nil {
		allowed, err := s.Limiter.Allow(ctx, method.UserID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", method.UserID).Warn("otp limiter unavailable")
		} else if !allowed {
			return time.Time{}, common.NewStateError("too many verification codes requested, try again later")
		}
	}

	code, err := common.GenerateOTP(s.Settings.OTPLength)
	if err != nil {
		return time.Time{}, fmt.Errorf("generate otp: %w", err)
	}
	otp := models.PayoutOTP{
		UserID:         method.UserID,
		PayoutMethodID: method.ID,
		OTP:            code,
		ExpiresAt:      s.Helper.Now().Add(s.Settings.OTPTTL),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND payout_method_id = ?", method.UserID, method.ID).
			Delete(&models.PayoutOTP{}).Error; err != nil {
			return err
		}
		return tx.Create(&otp).Error
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("store otp: %w", err)
	}

	s.Helper.Notify(ctx, Notification{
		UserID:   method.UserID,
		Template: TemplatePayoutOTP,
		Data: map[string]string{
			"code":       code,
			"account":    common.MaskAccountNumber(method.AccountNumber),
			"bank_name":  method.BankName,
			"expires_at": otp.ExpiresAt.Format(time.RFC3339),
		},
	})
	return otp.ExpiresAt, nil
}

// VerifyOTP consumes a code and marks the method verified. Codes are single
// use: the row is deleted in the same transaction that verifies the method.
func (s *PayoutMethodService) VerifyOTP(ctx context.Context, actor Actor, methodID, code string) (*models.PayoutMethod, error) {
	var method *models.PayoutMethod
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		method, err = s.owned(ctx, tx, actor, methodID)
		if err != nil {
			return err
		}

		var otp models.PayoutOTP
		err = database.ForUpdate(tx).
			Where("user_id = ? AND payout_method_id = ? AND verified = ?", method.UserID, method.ID, false).
			First(&otp).Error
		if database.IsNotFound(err) {
			return common.NewInvalidOTPError()
		}
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(otp.OTP), []byte(code)) != 1 || !s.Helper.Now().Before(otp.ExpiresAt) {
			return common.NewInvalidOTPError()
		}

		res := tx.Delete(&models.PayoutOTP{}, "id = ?", otp.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NewInvalidOTPError()
		}

		now := s.Helper.Now()
		method.IsVerified = true
		method.VerificationStatus = models.VerificationVerified
		method.VerifiedAt = &now
		return tx.Model(&models.PayoutMethod{}).Where("id = ?", method.ID).Updates(map[string]interface{}{
			"is_verified":         true,
			"verification_status": models.VerificationVerified,
			"verified_at":         now,
		}).Error
	})
	metrics.RecordOTPVerification(err == nil)
	if err != nil {
		return nil, err
	}

	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "payout_method.verify",
		ActorID:    actor.UserID,
		Resource:   "payout_method",
		ResourceID: method.ID,
		From:       string(models.VerificationPending),
		To:         string(models.VerificationVerified),
	})
	return method, nil
}

// PurgeExpiredOTPs removes codes that expired before now.
func (s *PayoutMethodService) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	db := s.DB.WithContext(ctx)
	res := db.Where("expires_at <= ?", now).Delete(&models.PayoutOTP{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		logrus.WithField("count", res.RowsAffected).Info("purged expired payout otps")
	}
	return res.RowsAffected, nil
}
