package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/sony/gobreaker"

	"github.com/LerianStudio/lib-txplan/txplan/internal/nilcheck"
)

// ConnectorOption configures a connector.
type ConnectorOption func(*connectorConfig)

type connectorConfig struct {
	breaker *gobreaker.CircuitBreaker
}

// WithCircuitBreaker runs Begin through cb. An open breaker fails Begin immediately.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) ConnectorOption {
	return func(cfg *connectorConfig) {
		cfg.breaker = cb
	}
}

// BreakerConfig tunes the breaker built by NewBeginBreaker.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// DefaultBreakerConfig tolerates transient database hiccups before tripping.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         5,
		Interval:            3 * time.Minute,
		Timeout:             45 * time.Second,
		ConsecutiveFailures: 20,
		FailureRatio:        0.6,
		MinRequests:         15,
	}
}

// NewBeginBreaker builds a breaker that trips on consecutive failures or on a failure ratio.
func NewBeginBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "txplan-begin-" + name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio)
		},
	})
}

func applyConnectorOptions(opts []ConnectorOption) connectorConfig {
	var cfg connectorConfig

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

func beginThroughBreaker(breaker *gobreaker.CircuitBreaker, begin func() (rawTx, error)) (Tx, error) {
	if breaker == nil {
		raw, err := begin()
		if err != nil {
			return nil, err
		}

		return &sqlTx{rawTx: raw}, nil
	}

	out, err := breaker.Execute(func() (any, error) {
		return begin()
	})
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", breaker.Name(), err)
	}

	return &sqlTx{rawTx: out.(rawTx)}, nil
}

// SQLConnector begins transactions on a single database/sql pool.
type SQLConnector struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker
}

// NewSQLConnector wraps db.
func NewSQLConnector(db *sql.DB, opts ...ConnectorOption) (*SQLConnector, error) {
	if db == nil {
		return nil, ErrNilDB
	}

	cfg := applyConnectorOptions(opts)

	return &SQLConnector{db: db, breaker: cfg.breaker}, nil
}

// Begin starts a transaction bound to ctx.
//
//nolint:ireturn
func (c *SQLConnector) Begin(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	return beginThroughBreaker(c.breaker, func() (rawTx, error) {
		return c.db.BeginTx(ctx, opts)
	})
}

// ResolverProvider yields a read/write resolver; *postgres.Client satisfies it.
type ResolverProvider interface {
	Resolver(ctx context.Context) (dbresolver.DB, error)
}

// ResolverConnector begins transactions through a dbresolver, which always routes them to a primary.
type ResolverConnector struct {
	provider ResolverProvider
	breaker  *gobreaker.CircuitBreaker
}

// NewResolverConnector wraps provider.
func NewResolverConnector(provider ResolverProvider, opts ...ConnectorOption) (*ResolverConnector, error) {
	if nilcheck.Interface(provider) {
		return nil, ErrNilProvider
	}

	cfg := applyConnectorOptions(opts)

	return &ResolverConnector{provider: provider, breaker: cfg.breaker}, nil
}

// Begin resolves the pools and starts a transaction on the primary.
//
//nolint:ireturn
func (c *ResolverConnector) Begin(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	resolver, err := c.provider.Resolver(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	if nilcheck.Interface(resolver) || len(resolver.PrimaryDBs()) == 0 {
		return nil, ErrNoPrimaryDB
	}

	return beginThroughBreaker(c.breaker, func() (rawTx, error) {
		return resolver.BeginTx(ctx, opts)
	})
}
