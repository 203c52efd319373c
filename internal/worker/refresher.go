package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/rs/zerolog"
)

// TokenRefresher is the OAuth side the refresher drives.
type TokenRefresher interface {
	RefreshIfExpiring(ctx context.Context, window time.Duration) (bool, error)
}

// Locker serializes work across worker replicas.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error)
}

const refreshLockName = "oauth:mercadopago:refresh"

type RefresherConfig struct {
	Interval time.Duration
	Ahead    time.Duration
}

// Refresher renews the stored OAuth grant before it expires.
type Refresher struct {
	cfg    RefresherConfig
	tokens TokenRefresher
	locker Locker
	logger zerolog.Logger
}

// NewRefresher builds a refresher. locker may be nil when only one worker
// runs.
func NewRefresher(cfg RefresherConfig, tokens TokenRefresher, locker Locker, logger zerolog.Logger) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Ahead <= 0 {
		cfg.Ahead = 24 * time.Hour
	}
	return &Refresher{cfg: cfg, tokens: tokens, locker: locker, logger: logger.With().Str("component", "token_refresher").Logger()}
}

// Run checks once immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.CheckOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("Token refresh failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CheckOnce refreshes the token if it expires within the configured window.
func (r *Refresher) CheckOnce(ctx context.Context) error {
	var (
		refreshed bool
		checkErr  error
	)
	check := func(ctx context.Context) error {
		refreshed, checkErr = r.tokens.RefreshIfExpiring(ctx, r.cfg.Ahead)
		return checkErr
	}

	if r.locker == nil {
		if err := check(ctx); err != nil {
			return err
		}
	} else {
		held, err := r.locker.WithLock(ctx, refreshLockName, check)
		switch {
		case checkErr != nil:
			return checkErr
		case errors.Is(err, domainErrors.ErrLockNotHeld):
			r.logger.Warn().Err(err).Str("lock", refreshLockName).Msg("Refresh lock expired before release")
		case err != nil:
			return err
		}
		if !held {
			r.logger.Debug().Msg("Another worker holds the refresh lock")
			return nil
		}
	}

	if refreshed {
		r.logger.Info().Msg("OAuth token refreshed ahead of expiry")
	}
	return nil
}
