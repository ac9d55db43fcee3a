package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/talkbase/accounts/pkg/errors"
)

const defaultSendTimeout = 15 * time.Second

// ErrNotOnWhatsApp is returned when the gateway reports the recipient has no
// WhatsApp account.
var ErrNotOnWhatsApp = apperrors.NewNotFound("This phone number is not on WhatsApp")

// Sender delivers a text message to a phone number over some channel.
type Sender interface {
	SendText(ctx context.Context, phoneNumber, message string) error
}

// WhatsAppConfig describes the WhatsApp gateway.
type WhatsAppConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// WhatsAppSender delivers messages through the WhatsApp gateway.
type WhatsAppSender struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewWhatsAppSender builds a sender for the configured gateway.
func NewWhatsAppSender(cfg WhatsAppConfig) *WhatsAppSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	return &WhatsAppSender{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SendText posts a text message. A 404 from the gateway means the recipient
// is not on WhatsApp and surfaces as ErrNotOnWhatsApp.
func (s *WhatsAppSender) SendText(ctx context.Context, phoneNumber, message string) error {
	payload, err := json.Marshal(map[string]string{
		"to":   phoneNumber,
		"text": message,
	})
	if err != nil {
		return fmt.Errorf("whatsapp sender: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp sender: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewUpstream("Could not reach the WhatsApp gateway", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotOnWhatsApp
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.NewUpstream(
			"The WhatsApp gateway rejected the message",
			fmt.Errorf("status %d: %s", resp.StatusCode, body),
		)
	}
}

// SMSConfig describes the SMS provider.
type SMSConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
	Timeout  time.Duration
}

// SMSSender delivers messages through the SMS provider.
type SMSSender struct {
	baseURL  string
	apiKey   string
	senderID string
	client   *http.Client
}

// NewSMSSender builds a sender for the configured provider.
func NewSMSSender(cfg SMSConfig) *SMSSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	return &SMSSender{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		client:   &http.Client{Timeout: timeout},
	}
}

// SendText posts a text message via the SMS provider.
func (s *SMSSender) SendText(ctx context.Context, phoneNumber, message string) error {
	payload, err := json.Marshal(map[string]string{
		"to":   phoneNumber,
		"from": s.senderID,
		"body": message,
	})
	if err != nil {
		return fmt.Errorf("sms sender: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sms", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms sender: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewUpstream("Could not reach the SMS provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.NewUpstream(
			"The SMS provider rejected the message",
			fmt.Errorf("status %d: %s", resp.StatusCode, body),
		)
	}
	return nil
}
