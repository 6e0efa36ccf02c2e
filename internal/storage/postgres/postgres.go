// Package postgres persists accounts, characters, relations, audit rows and
// bazaar listings using pgx v5.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/nosgate/internal/config"
)

// Pool owns the shared pgx connection pool of one world channel.
type Pool struct {
	pool *pgxpool.Pool
}

// PoolOption adjusts the pool configuration before connecting.
type PoolOption func(*pgxpool.Config)

// WithApplicationName tags every connection so channels can be told apart
// in pg_stat_activity.
func WithApplicationName(name string) PoolOption {
	return func(c *pgxpool.Config) {
		c.ConnConfig.RuntimeParams["application_name"] = name
	}
}

// NewPool connects to PostgreSQL and verifies the connection.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, opts ...PoolOption) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	for _, opt := range opts {
		opt(poolCfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Pool{pool: pool}, nil
}

// WrapPool adopts an already connected pgx pool. Close closes db.
func WrapPool(db *pgxpool.Pool) *Pool {
	if db == nil {
		panic("postgres.WrapPool: db must not be nil")
	}
	return &Pool{pool: db}
}

// Close releases all pool resources.
func (p *Pool) Close() { p.pool.Close() }

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool { return p.pool }

// Repositories groups every repository a world channel uses.
type Repositories struct {
	Accounts   *AccountRepository
	Characters *CharacterRepository
	Relations  *RelationRepository
	Logs       *GeneralLogRepository
	Bazaar     *BazaarRepository
}

// Repositories builds one of each repository over the pool.
func (p *Pool) Repositories() Repositories {
	return Repositories{
		Accounts:   NewAccountRepository(p.pool),
		Characters: NewCharacterRepository(p.pool),
		Relations:  NewRelationRepository(p.pool),
		Logs:       NewGeneralLogRepository(p.pool),
		Bazaar:     NewBazaarRepository(p.pool),
	}
}
