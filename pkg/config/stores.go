package config

import (
	"context"

	"github.com/ircservices/saslbroker/internal/accountstore"
	"github.com/ircservices/saslbroker/internal/reaper"
)

// CreateAccountStore opens the account store backend selected by
// cfg.AccountStore, running migrations (postgres) or AutoMigrate
// (sqlite) before returning, exactly as accountstore.Open does.
func CreateAccountStore(ctx context.Context, cfg AccountStoreConfig) (*accountstore.Store, error) {
	return accountstore.Open(ctx, accountstore.Config{
		Driver:       accountstore.Driver(cfg.Driver),
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
}

// CreateReaper builds a Reaper ticking at cfg.Tick, treating a session as
// stale once it has been idle for a single tick, per spec.md §4.6.
func CreateReaper(store reaper.Store, cfg ReaperConfig, opts ...reaper.Option) *reaper.Reaper {
	return reaper.New(store, cfg.Tick, cfg.Tick, opts...)
}
