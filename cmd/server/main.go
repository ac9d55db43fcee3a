package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/api"
	"github.com/talkbase/accounts/internal/app"
	"github.com/talkbase/accounts/internal/app/maintenance"
	iauth "github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/database"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/notifications"
	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/internal/subscription"
	"github.com/talkbase/accounts/pkg/logger"
	"github.com/talkbase/accounts/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("accounts-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithStream("bootstrap")
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	tokens, err := iauth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise token service: %w", err)
	}

	refresh, err := iauth.NewRefreshService(db, cfg.Auth.RefreshServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise refresh service: %w", err)
	}

	gate := subscription.NewGate(cfg.Subscriptions.GateConfig(), tokens)
	if cfg.Subscriptions.BaseURL == "" {
		log.Info("no billing service configured; granting base entitlements to every team")
	}

	publisher, err := buildEventPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	bus := events.NewManager(publisher)

	var whatsapp, sms notifications.Sender
	if cfg.Messaging.WhatsApp.Enabled {
		whatsapp = notifications.NewWhatsAppSender(cfg.Messaging.WhatsAppSenderConfig())
	}
	if cfg.Messaging.SMS.Enabled {
		sms = notifications.NewSMSSender(cfg.Messaging.SMSSenderConfig())
	}
	dispatcher := notifications.NewDispatcher(whatsapp, sms)

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}

	otpSvc := services.NewOTPService(db, dispatcher)
	authSvc := services.NewAuthService(db, tokens, refresh, gate)
	userSvc := services.NewUserService(db, otpSvc, gate, bus)
	teamSvc := services.NewTeamService(db, bus)
	inviteSvc := services.NewInviteService(db, gate, bus)
	notifySvc := services.NewNotifyService(db, whatsapp, mailer)

	if cfg.Maintenance.Enabled {
		sweeper := maintenance.NewSweeper(refresh, otpSvc, inviteSvc,
			maintenance.WithSchedule(cfg.Maintenance.Schedule))
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := sweeper.Stop()
			if err := sweeper.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown sweep failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(api.Deps{
		DB:      db,
		Tokens:  tokens,
		Auth:    authSvc,
		Users:   userSvc,
		Teams:   teamSvc,
		Invites: inviteSvc,
		OTP:     otpSvc,
		Notify:  notifySvc,
		Events:  bus,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	// Drain any change events buffered by in-flight requests.
	bus.Flush(shutdownCtx)

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseConfig()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithStream("database").Info("database connected",
		zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("resolve database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}

// buildEventPublisher wires the SNS publisher when a topic is configured.
// Without one, change events are buffered and discarded.
func buildEventPublisher(ctx context.Context, cfg *app.Config) (events.Publisher, error) {
	topic := strings.TrimSpace(cfg.Events.SNS.TopicARN)
	if topic == "" {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Events.SNS.Region),
	}
	if cfg.Events.SNS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Events.SNS.AccessKeyID, cfg.Events.SNS.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws configuration: %w", err)
	}

	return events.NewSNSPublisher(sns.NewFromConfig(awsCfg), topic), nil
}
