package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	driverName             = "pgx"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	// ErrNilClient is returned when a method is called on a nil *Client.
	ErrNilClient = errors.New("postgres client is nil")
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context is nil")
	// ErrInvalidConfig is returned when Config or MigrationConfig fails validation.
	ErrInvalidConfig = errors.New("invalid postgres config")
	// ErrNotConnected is returned by Primary before Connect succeeded.
	ErrNotConnected = errors.New("postgres client is not connected")
	// ErrInvalidDatabaseName is returned for database names that are not plain identifiers.
	ErrInvalidDatabaseName = errors.New("invalid database name")
	// ErrNilMigrator is returned when Up is called on a nil *Migrator.
	ErrNilMigrator = errors.New("postgres migrator is nil")
)

var (
	dbOpenFn = sql.Open

	createResolverFn = func(primaryDB, replicaDB *sql.DB, logger log.Logger) (_ dbresolver.DB, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Log(context.Background(), log.LevelError, "dbresolver panicked", log.Any("panic", recovered))
				err = fmt.Errorf("failed to create resolver: %v", recovered)
			}
		}()

		connectionDB := dbresolver.New(
			dbresolver.WithPrimaryDBs(primaryDB),
			dbresolver.WithReplicaDBs(replicaDB),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		)
		if connectionDB == nil {
			return nil, errors.New("resolver returned nil connection")
		}

		return connectionDB, nil
	}

	runMigrationsFn = runMigrations

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringSecretPattern      = regexp.MustCompile(`(?i)\b(password|sslkey|sslcert|sslrootcert|sslpassword)=([^\s]+)`)
	dbNamePattern                      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// Config configures a Client.
type Config struct {
	PrimaryDSN string
	// ReplicaDSN defaults to PrimaryDSN.
	ReplicaDSN         string
	Logger             log.Logger
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	if strings.TrimSpace(c.ReplicaDSN) == "" {
		c.ReplicaDSN = c.PrimaryDSN
	}

	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = defaultMaxOpenConns
	}

	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = defaultMaxIdleConns
	}

	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = defaultConnMaxIdleTime
	}

	return c
}

func (c Config) validate() error {
	if strings.TrimSpace(c.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary dsn is required", ErrInvalidConfig)
	}

	if c.MaxIdleConnections > c.MaxOpenConnections {
		return fmt.Errorf("%w: max idle connections (%d) exceeds max open connections (%d)",
			ErrInvalidConfig, c.MaxIdleConnections, c.MaxOpenConnections)
	}

	return nil
}

// SanitizedError carries a connection error whose message has credentials masked.
type SanitizedError struct {
	Message string
	Err     error
}

func (e *SanitizedError) Error() string {
	return e.Message
}

func (e *SanitizedError) Unwrap() error {
	return e.Err
}

func newSanitizedError(prefix string, err error) error {
	return &SanitizedError{
		Message: prefix + ": " + sanitizeSensitiveString(err.Error()),
		Err:     err,
	}
}

// Client owns the primary and replica pools and the resolver in front of them.
type Client struct {
	cfg      Config
	mu       sync.RWMutex
	resolver dbresolver.DB
	primary  *sql.DB
	replica  *sql.DB
}

// New validates cfg and returns an unconnected Client.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Client{cfg: cfg}, nil
}

// Connect opens fresh pools and swaps them in. The previous resolver is kept
// when anything fails and closed once the new one is live.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	logger := c.cfg.Logger

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	logger.Log(ctx, log.LevelInfo, "connecting to primary and replica databases")

	primary, err := dbOpenFn(driverName, c.cfg.PrimaryDSN)
	if err != nil {
		sanitized := newSanitizedError("failed to open primary database", err)
		logger.Log(ctx, log.LevelError, "failed to open primary database", log.Err(sanitized))

		return sanitized
	}

	replica, err := dbOpenFn(driverName, c.cfg.ReplicaDSN)
	if err != nil {
		_ = primary.Close()

		sanitized := newSanitizedError("failed to open replica database", err)
		logger.Log(ctx, log.LevelError, "failed to open replica database", log.Err(sanitized))

		return sanitized
	}

	for _, db := range []*sql.DB{primary, replica} {
		db.SetMaxOpenConns(c.cfg.MaxOpenConnections)
		db.SetMaxIdleConns(c.cfg.MaxIdleConnections)
		db.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime)
	}

	resolver, err := createResolverFn(primary, replica, logger)
	if err != nil {
		_ = primary.Close()
		_ = replica.Close()

		logger.Log(ctx, log.LevelError, "failed to create resolver", log.Err(err))

		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		_ = resolver.Close()

		sanitized := newSanitizedError("failed to ping database", err)
		logger.Log(ctx, log.LevelError, "failed to ping database", log.Err(sanitized))

		return sanitized
	}

	previous := c.resolver

	c.resolver = resolver
	c.primary = primary
	c.replica = replica

	if previous != nil {
		if err := previous.Close(); err != nil {
			logger.Log(ctx, log.LevelWarn, "failed to close previous resolver", log.Err(err))
		}
	}

	logger.Log(ctx, log.LevelInfo, "connected to postgres")

	return nil
}

// Resolver returns the live resolver, connecting lazily on first use.
//
//nolint:ireturn
func (c *Client) Resolver(ctx context.Context) (dbresolver.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()
	resolver := c.resolver
	c.mu.RUnlock()

	if resolver != nil {
		return resolver, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver != nil {
		return c.resolver, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.resolver, nil
}

// Primary returns the primary pool. It never connects.
func (c *Client) Primary() (*sql.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.primary == nil {
		return nil, ErrNotConnected
	}

	return c.primary, nil
}

// IsConnected reports whether a resolver is live.
func (c *Client) IsConnected() (bool, error) {
	if c == nil {
		return false, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.resolver != nil, nil
}

// Close releases the pools. It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error

	switch {
	case c.resolver != nil:
		err = c.resolver.Close()
	default:
		if c.primary != nil {
			err = errors.Join(err, c.primary.Close())
		}

		if c.replica != nil && c.replica != c.primary {
			err = errors.Join(err, c.replica.Close())
		}
	}

	c.resolver = nil
	c.primary = nil
	c.replica = nil

	return err
}

// MigrationConfig configures a Migrator. Either MigrationsPath or Component is required;
// Component resolves to components/<component>/migrations.
type MigrationConfig struct {
	PrimaryDSN           string
	DatabaseName         string
	MigrationsPath       string
	Component            string
	AllowMultiStatements bool
	Logger               log.Logger
}

func (c MigrationConfig) withDefaults() MigrationConfig {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	return c
}

func (c MigrationConfig) validate() error {
	if strings.TrimSpace(c.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary dsn is required", ErrInvalidConfig)
	}

	if err := validateDBName(c.DatabaseName); err != nil {
		return err
	}

	if strings.TrimSpace(c.MigrationsPath) == "" && strings.TrimSpace(c.Component) == "" {
		return fmt.Errorf("%w: migrations path or component is required", ErrInvalidConfig)
	}

	return nil
}

// Migrator applies schema migrations on demand. Connect never migrates implicitly.
type Migrator struct {
	cfg MigrationConfig
}

// NewMigrator validates cfg and returns a Migrator.
func NewMigrator(cfg MigrationConfig) (*Migrator, error) {
	cfg = cfg.withDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Migrator{cfg: cfg}, nil
}

// Up applies every pending migration. No change and missing migration files are not errors.
func (m *Migrator) Up(ctx context.Context) error {
	if m == nil {
		return ErrNilMigrator
	}

	if ctx == nil {
		return ErrNilContext
	}

	migrationsPath, err := resolveMigrationsPath(m.cfg.MigrationsPath, m.cfg.Component)
	if err != nil {
		return err
	}

	db, err := dbOpenFn(driverName, m.cfg.PrimaryDSN)
	if err != nil {
		return newSanitizedError("failed to open database for migrations", err)
	}

	defer db.Close()

	return runMigrationsFn(ctx, db, migrationsPath, m.cfg.DatabaseName, m.cfg.AllowMultiStatements, m.cfg.Logger)
}

func resolveMigrationsPath(migrationsPath, component string) (string, error) {
	if strings.TrimSpace(migrationsPath) != "" {
		return sanitizePath(migrationsPath)
	}

	sanitized := filepath.Base(component)
	if sanitized == "." || sanitized == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid component name %q", ErrInvalidConfig, component)
	}

	return filepath.Abs(filepath.Join("components", sanitized, "migrations"))
}

func sanitizeSensitiveString(s string) string {
	s = connectionStringCredentialsPattern.ReplaceAllString(s, "://***@")

	return connectionStringSecretPattern.ReplaceAllString(s, "${1}=***")
}

func sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("invalid migrations path: %q", path)
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	return absPath, nil
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, migrationsPath, dbName string, allowMultiStatements bool, logger log.Logger) error {
	sourceURL := url.URL{Scheme: "file", Path: filepath.ToSlash(migrationsPath)}

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{
		MultiStatementEnabled: allowMultiStatements,
		DatabaseName:          dbName,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL.String(), dbName, driver)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Log(ctx, log.LevelWarn, "no migration files found, skipping", log.String("path", migrationsPath))

			return nil
		}

		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log(ctx, log.LevelInfo, "no new migrations found")

			return nil
		}

		if errors.Is(err, os.ErrNotExist) {
			logger.Log(ctx, log.LevelWarn, "no migration files found, skipping", log.String("path", migrationsPath))

			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Log(ctx, log.LevelInfo, "migrations applied", log.String("database", dbName))

	return nil
}
