package ledger

import (
	"context"
	"fmt"

	"github.com/fiscal-credits/creditledger/pkg/config"
	"github.com/fiscal-credits/creditledger/pkg/postgres"
)

// Open returns the store selected by cfg.Store.Driver. For Postgres the
// schema is applied first when cfg.Store.Migrate is set.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverBolt:
		return OpenBoltStore(cfg.Store.BoltPath)
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStore(db)
		if cfg.Store.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
