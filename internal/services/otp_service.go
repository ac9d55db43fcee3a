package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/pkg/crypto"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/logger"
)

const (
	otpLength   = 6
	otpValidity = 5 * time.Minute
	otpResends  = 3
)

// TextSender delivers a text and reports the channel that carried it.
type TextSender interface {
	SendText(ctx context.Context, phoneNumber, message string) (string, error)
}

// OTPService owns the phone-verification flow: one live code per phone
// number, bounded resends, and best-effort delivery.
type OTPService struct {
	db     *gorm.DB
	sender TextSender
	now    func() time.Time
	log    *zap.Logger
}

// NewOTPService wires the OTP flow. The sender may be nil in tests.
func NewOTPService(db *gorm.DB, sender TextSender) *OTPService {
	return &OTPService{
		db:     db,
		sender: sender,
		now:    time.Now,
		log:    logger.WithStream("otp"),
	}
}

// Request issues or re-issues the verification code for a phone number.
// A live code is reused and its window refreshed while resends remain;
// exhausting them rate-limits the caller until the code expires. The
// read-check-write runs in one transaction so concurrent requests cannot
// both consume the last resend.
func (s *OTPService) Request(ctx context.Context, phoneNumber string) (*models.OTP, error) {
	now := s.now()
	var otp models.OTP

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&otp, "phone_number = ?", phoneNumber).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !otp.ExpiresAt.After(now)):
			code, genErr := crypto.GenerateOTP(otpLength)
			if genErr != nil {
				return fmt.Errorf("generate otp: %w", genErr)
			}
			otp = models.OTP{
				PhoneNumber: phoneNumber,
				Code:        code,
				ExpiresAt:   now.Add(otpValidity),
				ResendsLeft: otpResends,
			}
			return tx.Save(&otp).Error

		case err != nil:
			return fmt.Errorf("load otp: %w", err)

		case otp.ResendsLeft <= 0:
			minutesLeft := int(math.Ceil(otp.ExpiresAt.Sub(now).Minutes()))
			return apperrors.NewRateLimited(
				fmt.Sprintf("Too many OTP requests, try again in %d minute(s)", minutesLeft),
				minutesLeft,
			)

		default:
			otp.ResendsLeft--
			otp.ExpiresAt = now.Add(otpValidity)
			return tx.Save(&otp).Error
		}
	})
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, &otp)
	return &otp, nil
}

// deliver sends the code. Delivery is best effort; failures are logged and
// never fail the enclosing request.
func (s *OTPService) deliver(ctx context.Context, otp *models.OTP) {
	if s.sender == nil {
		return
	}

	message := fmt.Sprintf("Your verification code is %d. It expires in 5 minutes.", otp.Code)
	channel, err := s.sender.SendText(ctx, otp.PhoneNumber, message)
	if err != nil {
		s.log.Warn("otp delivery failed",
			zap.String("phoneNumber", otp.PhoneNumber),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return
	}

	s.log.Info("otp delivered",
		zap.String("phoneNumber", otp.PhoneNumber),
		zap.String("channel", channel),
	)
}

// Verify checks that the code matches the live OTP for the phone number.
func (s *OTPService) Verify(ctx context.Context, phoneNumber string, code int) error {
	return s.verify(s.db.WithContext(ctx), phoneNumber, code)
}

// Consume verifies the code and deletes the record so it cannot be
// replayed. Pass the enclosing transaction when the consumption must be
// atomic with other writes; a nil tx uses the service's own connection.
func (s *OTPService) Consume(ctx context.Context, tx *gorm.DB, phoneNumber string, code int) error {
	if tx == nil {
		tx = s.db.WithContext(ctx)
	}

	if err := s.verify(tx, phoneNumber, code); err != nil {
		return err
	}
	if err := tx.Delete(&models.OTP{}, "phone_number = ?", phoneNumber).Error; err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

func (s *OTPService) verify(tx *gorm.DB, phoneNumber string, code int) error {
	var otp models.OTP
	err := tx.Take(&otp, "phone_number = ?", phoneNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrUnauthorized.WithInternal(errors.New("no otp requested"))
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if !otp.ExpiresAt.After(s.now()) || otp.Code != code {
		return apperrors.ErrUnauthorized.WithInternal(errors.New("otp mismatch or expired"))
	}
	return nil
}

// DeleteExpired removes OTP records past their expiry.
func (s *OTPService) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.OTP{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired otps: %w", result.Error)
	}
	return result.RowsAffected, nil
}
