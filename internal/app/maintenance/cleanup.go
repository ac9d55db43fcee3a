package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/pkg/logger"
)

const defaultSchedule = "@hourly"

// Sweeper periodically removes expired refresh tokens, verification codes,
// and invite links. Expiry is already enforced at read time everywhere, so
// the sweep only reclaims storage; a missed run is harmless.
type Sweeper struct {
	refresh *iauth.RefreshService
	otp     *services.OTPService
	invites *services.InviteService

	cron     *cron.Cron
	schedule string
	log      *zap.Logger
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithSchedule overrides the cron specification shared by all sweeps.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper. Any nil dependency results in the
// corresponding sweep being skipped.
func NewSweeper(refresh *iauth.RefreshService, otp *services.OTPService, invites *services.InviteService, opts ...Option) *Sweeper {
	s := &Sweeper{
		refresh:  refresh,
		otp:      otp,
		invites:  invites,
		schedule: defaultSchedule,
		log:      logger.WithStream("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return s
}

// Start registers the sweep with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if s.refresh == nil && s.otp == nil && s.invites == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured sweeps sequentially. Primarily used in
// tests and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.refresh != nil {
		if n, err := s.refresh.DeleteExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else if n > 0 {
			s.log.Info("removed expired refresh tokens", zap.Int64("count", n))
		}
	}

	if s.otp != nil {
		if n, err := s.otp.DeleteExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else if n > 0 {
			s.log.Info("removed expired verification codes", zap.Int64("count", n))
		}
	}

	if s.invites != nil {
		if n, err := s.invites.DeleteExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else if n > 0 {
			s.log.Info("removed expired invite links", zap.Int64("count", n))
		}
	}

	return errs
}
