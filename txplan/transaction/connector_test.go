//go:build unit

package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	resolver dbresolver.DB
	err      error
}

//nolint:ireturn
func (p staticProvider) Resolver(context.Context) (dbresolver.DB, error) {
	return p.resolver, p.err
}

func TestNewSQLConnectorRequiresDB(t *testing.T) {
	t.Parallel()

	_, err := NewSQLConnector(nil)
	assert.ErrorIs(t, err, ErrNilDB)
}

func TestNewResolverConnectorRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := NewResolverConnector(nil)
	assert.ErrorIs(t, err, ErrNilProvider)
}

func TestDefaultBreakerConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultBreakerConfig()
	assert.Equal(t, uint32(5), cfg.MaxRequests)
	assert.Equal(t, uint32(20), cfg.ConsecutiveFailures)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
}

func TestCircuitBreakerOpensOnRepeatedBeginFailures(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	require.NoError(t, db.Close())

	breaker := NewBeginBreaker("sqlite", BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
		FailureRatio:        1,
		MinRequests:         100,
	})

	connector, err := NewSQLConnector(db, WithCircuitBreaker(breaker))
	require.NoError(t, err)

	for range 2 {
		_, err = connector.Begin(context.Background(), nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}

	_, err = connector.Begin(context.Background(), nil)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "txplan-begin-sqlite")
	assert.Equal(t, gobreaker.StateOpen, breaker.State())
}

func TestCircuitBreakerPassesThroughHealthyBegin(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)

	connector, err := NewSQLConnector(db, WithCircuitBreaker(NewBeginBreaker("healthy", DefaultBreakerConfig())))
	require.NoError(t, err)

	tx, err := connector.Begin(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, insertAccount(context.Background(), tx, "alice"))
	require.NoError(t, tx.Commit())

	assert.Equal(t, 1, countAccounts(t, db))
}

func TestResolverConnectorProviderFailure(t *testing.T) {
	t.Parallel()

	errDown := errors.New("primary unreachable")

	connector, err := NewResolverConnector(staticProvider{err: errDown})
	require.NoError(t, err)

	_, err = connector.Begin(context.Background(), nil)
	assert.ErrorIs(t, err, errDown)
}

func TestResolverConnectorWithoutResolver(t *testing.T) {
	t.Parallel()

	connector, err := NewResolverConnector(staticProvider{})
	require.NoError(t, err)

	_, err = connector.Begin(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoPrimaryDB)
}

func TestResolverConnectorRunsNestedScopesOnPrimary(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	resolver := dbresolver.New(dbresolver.WithPrimaryDBs(db))

	connector, err := NewResolverConnector(staticProvider{resolver: resolver})
	require.NoError(t, err)

	m, err := NewManager(connector)
	require.NoError(t, err)

	err = m.Do(context.Background(), Required, func(ctx context.Context, q Querier) error {
		if err := insertAccount(ctx, q, "alice"); err != nil {
			return err
		}

		_ = m.Do(ctx, Nested, func(ctx context.Context, q Querier) error {
			return insertAccount(ctx, q, "alice")
		})

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countAccounts(t, db))
}
