// Package cache enables and starts the Redis server and verifies it answers
// before later phases embed its endpoint in configuration.
package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stackup-sh/stackup/internal/provisioning"
	"github.com/stackup-sh/stackup/internal/util/retry"
)

// Phase enables the cache server.
type Phase struct {
	// Ping verifies the cache answers at addr. Replaced in tests.
	Ping func(ctx context.Context, addr string, db int) error

	// VerifyTimeout bounds the post-start verification.
	VerifyTimeout time.Duration
}

// New returns the cache phase.
func New() *Phase {
	return &Phase{
		Ping:          pingRedis,
		VerifyTimeout: time.Minute,
	}
}

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "cache" }

// Provision implements provisioning.Phase. An already-enabled or
// already-running cache server is success.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config.Cache

	if err := ctx.Systemd.EnableAndStart(ctx, cfg.Service); err != nil {
		return fmt.Errorf("failed to start cache server: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	err := retry.WithExponentialBackoff(ctx, func() error {
		return p.Ping(ctx, addr, cfg.DB)
	}, retry.WithInitialDelay(p.VerifyTimeout/60), retry.WithMaxDelay(p.VerifyTimeout/4))
	if err != nil {
		return fmt.Errorf("cache server did not answer at %s: %w", addr, err)
	}

	ctx.Observer.Info("cache ready", "addr", addr)
	return nil
}

func pingRedis(ctx context.Context, addr string, db int) error {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()
	return client.Ping(ctx).Err()
}
