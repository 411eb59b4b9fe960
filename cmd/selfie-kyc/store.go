package main

import (
	"context"
	"fmt"

	"github.com/devilx291/social-loan-ledger-82/internal/config"
	profilestore "github.com/devilx291/social-loan-ledger-82/modules/profile-store"
)

// profileBackend is a store that can also seed profiles.
type profileBackend interface {
	profilestore.Store
	profilestore.Seeder
}

// openStore opens the configured profile store. The returned close func is never nil.
func openStore(ctx context.Context, cfg config.StoreConfig) (profileBackend, func(), error) {
	switch cfg.Driver {
	case "memory":
		return profilestore.NewMemoryStore(), func() {}, nil
	case "sqlite":
		s, err := profilestore.OpenSQLite(ctx, cfg.Path, profilestore.DefaultSQLiteConfig())
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := profilestore.OpenPostgres(ctx, profilestore.PostgresConfig{URL: cfg.URL, Migrate: cfg.Migrate})
		if err != nil {
			return nil, func() {}, err
		}
		return s, s.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
