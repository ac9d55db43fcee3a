package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/notifications"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/logger"
	"github.com/talkbase/accounts/pkg/mail"
)

// ChannelResult reports the outcome of one delivery channel.
type ChannelResult struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// NotifyService fans a message out to the channels a user opted into.
// Delivery failures are folded into the per-channel results and one
// combined log entry; they never fail the operation.
type NotifyService struct {
	db       *gorm.DB
	whatsapp notifications.Sender
	mailer   mail.Mailer
	log      *zap.Logger
}

// NewNotifyService wires the fan-out. Either channel may be nil.
func NewNotifyService(db *gorm.DB, whatsapp notifications.Sender, mailer mail.Mailer) *NotifyService {
	return &NotifyService{
		db:       db,
		whatsapp: whatsapp,
		mailer:   mailer,
		log:      logger.WithStream("notify"),
	}
}

// Notify delivers a message to the user over every channel their
// preferences enable. The returned results cover only the channels that
// were attempted.
func (s *NotifyService) Notify(ctx context.Context, userID, subject, body string) ([]ChannelResult, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("notify service: find user: %w", err)
	}

	prefs := user.Notify.Data()

	var results []ChannelResult
	var failures error

	if prefs.WhatsApp && s.whatsapp != nil {
		result := ChannelResult{Channel: "whatsapp", Delivered: true}
		if err := s.whatsapp.SendText(ctx, user.PhoneNumber, body); err != nil {
			result.Delivered = false
			result.Error = apperrors.FromError(err).Message
			failures = multierr.Append(failures, fmt.Errorf("whatsapp: %w", err))
		}
		results = append(results, result)
	}

	if prefs.Email && user.EmailAddress != nil && s.mailer != nil {
		result := ChannelResult{Channel: "email", Delivered: true}
		err := s.mailer.Send(ctx, mail.Message{
			To:      *user.EmailAddress,
			Subject: subject,
			HTML:    body,
		})
		if err != nil {
			result.Delivered = false
			result.Error = apperrors.FromError(err).Message
			failures = multierr.Append(failures, fmt.Errorf("email: %w", err))
		}
		results = append(results, result)
	}

	if failures != nil {
		s.log.Warn("notification delivery incomplete",
			zap.String("userId", userID),
			zap.Error(failures),
		)
	}

	return results, nil
}
