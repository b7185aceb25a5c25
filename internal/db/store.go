package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arashthr/memex/internal/config"
	"github.com/arashthr/memex/internal/logging"
)

// Store is an open database handle and the dialect to speak to it.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	close   func()
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects to the configured backend. With migrate set, Postgres
// migrations are applied or the SQLite schema is created first.
func OpenStore(ctx context.Context, cfg *config.AppConfig, migrate bool) (*Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		conn, err := OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := InitSchema(ctx, conn); err != nil {
				conn.Close()
				return nil, err
			}
		}
		logging.Logger.Infow("using sqlite store", "path", cfg.Store.SQLitePath)
		return &Store{DB: conn, Dialect: SQLite, close: func() { conn.Close() }}, nil

	case config.DriverPostgres:
		if migrate {
			if err := Migrate(cfg.PSQL.PgConnectionString()); err != nil {
				return nil, err
			}
		}
		pool, err := Open(ctx, cfg.PSQL)
		if err != nil {
			return nil, fmt.Errorf("connecting to db: %w", err)
		}
		conn := SQL(pool)
		logging.Logger.Infow("using postgres store", "host", cfg.PSQL.Host, "db", cfg.PSQL.DbName)
		return &Store{DB: conn, Dialect: Postgres, close: func() {
			conn.Close()
			pool.Close()
		}}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
