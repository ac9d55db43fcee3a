package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/database"
	"github.com/talkbase/accounts/internal/notifications"
	"github.com/talkbase/accounts/internal/subscription"
	"github.com/talkbase/accounts/pkg/mail"
)

// Config represents the runtime configuration for the accounts backend.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Events        EventsConfig        `mapstructure:"events"`
	Messaging     MessagingConfig     `mapstructure:"messaging"`
	Email         EmailConfig         `mapstructure:"email"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures token signing and session settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
}

// JWTSettings configures the ES256 access token signer. Keys are PEM
// encoded; bare base64 bodies without armour are also accepted.
type JWTSettings struct {
	PrivateKey string        `mapstructure:"private_key"`
	PublicKey  string        `mapstructure:"public_key"`
	TTL        time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh token lifetimes.
type SessionSettings struct {
	RefreshTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SubscriptionsConfig points at the billing service. An empty base URL
// disables the remote gate and grants every team the base catalogue.
type SubscriptionsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventsConfig configures the change event pipeline.
type EventsConfig struct {
	SNS SNSConfig `mapstructure:"sns"`
}

// SNSConfig describes the SNS topic change events are published to. An
// empty topic ARN disables publishing. Explicit keys override the default
// AWS credential chain; leave them empty on instances with a role attached.
type SNSConfig struct {
	TopicARN        string `mapstructure:"topic_arn"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// MessagingConfig groups the OTP delivery channels.
type MessagingConfig struct {
	WhatsApp WhatsAppSettings `mapstructure:"whatsapp"`
	SMS      SMSSettings      `mapstructure:"sms"`
}

// WhatsAppSettings configures the WhatsApp gateway.
type WhatsAppSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMSSettings configures the SMS fallback provider.
type SMSSettings struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	SenderID string        `mapstructure:"sender_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the background sweeps.
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ACCOUNTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/accounts.sqlite")

	v.SetDefault("auth.jwt.access_token_ttl", "12h")
	v.SetDefault("auth.session.refresh_token_ttl", "336h") // 14 days

	v.SetDefault("subscriptions.timeout", "10s")

	v.SetDefault("events.sns.region", "eu-west-1")

	v.SetDefault("messaging.whatsapp.enabled", false)
	v.SetDefault("messaging.whatsapp.timeout", "15s")
	v.SetDefault("messaging.sms.enabled", false)
	v.SetDefault("messaging.sms.timeout", "15s")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DatabaseConfig converts the loaded settings into the connection options
// the database package expects.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:   strings.ToLower(strings.TrimSpace(c.Database.Driver)),
		Path:     strings.TrimSpace(c.Database.Path),
		DSN:      strings.TrimSpace(c.Database.DSN),
		Host:     strings.TrimSpace(c.Database.Host),
		Port:     c.Database.Port,
		Name:     strings.TrimSpace(c.Database.Name),
		User:     strings.TrimSpace(c.Database.Username),
		Password: c.Database.Password,
	}
}

// TokenServiceConfig maps the JWT settings onto the token service.
func (c *AuthConfig) TokenServiceConfig() auth.TokenConfig {
	return auth.TokenConfig{
		PrivateKeyPEM:  strings.TrimSpace(c.JWT.PrivateKey),
		PublicKeyPEM:   strings.TrimSpace(c.JWT.PublicKey),
		AccessTokenTTL: c.JWT.TTL,
	}
}

// RefreshServiceConfig maps the session settings onto the refresh service.
func (c *AuthConfig) RefreshServiceConfig() auth.RefreshConfig {
	return auth.RefreshConfig{TTL: c.Session.RefreshTTL}
}

// GateConfig maps the billing settings onto the subscription gate.
func (c *SubscriptionsConfig) GateConfig() subscription.Config {
	return subscription.Config{
		BaseURL: strings.TrimSpace(c.BaseURL),
		Timeout: c.Timeout,
	}
}

// WhatsAppSenderConfig maps the gateway settings onto the WhatsApp sender.
func (c *MessagingConfig) WhatsAppSenderConfig() notifications.WhatsAppConfig {
	return notifications.WhatsAppConfig{
		BaseURL: strings.TrimSpace(c.WhatsApp.BaseURL),
		Token:   c.WhatsApp.Token,
		Timeout: c.WhatsApp.Timeout,
	}
}

// SMSSenderConfig maps the provider settings onto the SMS sender.
func (c *MessagingConfig) SMSSenderConfig() notifications.SMSConfig {
	return notifications.SMSConfig{
		BaseURL:  strings.TrimSpace(c.SMS.BaseURL),
		APIKey:   c.SMS.APIKey,
		SenderID: c.SMS.SenderID,
		Timeout:  c.SMS.Timeout,
	}
}

// SMTPSettings maps the email settings onto the mailer.
func (c *EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     strings.TrimSpace(c.SMTP.From),
		Timeout:  c.SMTP.Timeout,
	}
}
