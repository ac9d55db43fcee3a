package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/talkbase/accounts/pkg/logger"
	"github.com/talkbase/accounts/pkg/metrics"
)

// Delivery channels reported by the dispatcher.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

// Dispatcher sends texts over WhatsApp first and falls back to SMS when the
// gateway fails. A recipient who is not on WhatsApp gets no fallback; the
// caller needs to know the number is unreachable there.
type Dispatcher struct {
	whatsapp Sender
	sms      Sender
	log      *zap.Logger
}

// NewDispatcher wires the two channels. Either sender may be nil when that
// channel is not configured.
func NewDispatcher(whatsapp, sms Sender) *Dispatcher {
	return &Dispatcher{
		whatsapp: whatsapp,
		sms:      sms,
		log:      logger.WithStream("notifications"),
	}
}

// SendText delivers the message and reports which channel carried it.
func (d *Dispatcher) SendText(ctx context.Context, phoneNumber, message string) (string, error) {
	if d.whatsapp != nil {
		err := d.whatsapp.SendText(ctx, phoneNumber, message)
		if err == nil {
			metrics.OTPDispatches.WithLabelValues(ChannelWhatsApp, "ok").Inc()
			return ChannelWhatsApp, nil
		}
		if errors.Is(err, ErrNotOnWhatsApp) {
			metrics.OTPDispatches.WithLabelValues(ChannelWhatsApp, "not_found").Inc()
			return ChannelWhatsApp, err
		}

		metrics.OTPDispatches.WithLabelValues(ChannelWhatsApp, "error").Inc()
		d.log.Warn("whatsapp delivery failed, falling back to sms",
			zap.String("phoneNumber", phoneNumber),
			zap.Error(err),
		)
	}

	if d.sms == nil {
		return "", errors.New("dispatcher: no delivery channel configured")
	}

	if err := d.sms.SendText(ctx, phoneNumber, message); err != nil {
		metrics.OTPDispatches.WithLabelValues(ChannelSMS, "error").Inc()
		return ChannelSMS, err
	}

	metrics.OTPDispatches.WithLabelValues(ChannelSMS, "ok").Inc()
	return ChannelSMS, nil
}
