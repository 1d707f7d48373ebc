package zap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log calls go through one wrapper frame before reaching zap.
const callerSkipFrames = 1

// Environment selects the level default and encoder profile.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLocal       Environment = "local"
)

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid zap config")

func (e Environment) verbose() bool {
	return e == EnvironmentDevelopment || e == EnvironmentLocal
}

// ParseEnvironment maps a name such as "prod" or "Local" to an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return EnvironmentProduction, nil
	case "staging", "stage":
		return EnvironmentStaging, nil
	case "development", "dev":
		return EnvironmentDevelopment, nil
	case "local", "":
		return EnvironmentLocal, nil
	}

	return "", fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, s)
}

// Config configures New.
type Config struct {
	Environment Environment
	// Level overrides the environment default: debug for development and local, info otherwise.
	Level           string
	OTelLibraryName string
	// Output receives JSON entries. Defaults to os.Stderr.
	Output io.Writer
}

func (c Config) validate() error {
	if strings.TrimSpace(c.OTelLibraryName) == "" {
		return fmt.Errorf("%w: OTelLibraryName is required", ErrInvalidConfig)
	}

	switch c.Environment {
	case EnvironmentProduction, EnvironmentStaging, EnvironmentDevelopment, EnvironmentLocal:
		return nil
	default:
		return fmt.Errorf("%w: invalid environment %q", ErrInvalidConfig, c.Environment)
	}
}

// New builds a JSON logger that also forwards every entry to the global OpenTelemetry
// logger provider under OTelLibraryName.
func New(cfg Config) (*Logger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	level, err := resolveLevel(cfg)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig(cfg.Environment)), zapcore.Lock(zapcore.AddSync(out)), level),
		otelzap.NewCore(cfg.OTelLibraryName),
	)

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(callerSkipFrames)}
	if cfg.Environment.verbose() {
		opts = append(opts, zap.Development())
	}

	return &Logger{logger: zap.New(core, opts...), atomicLevel: level}, nil
}

func resolveLevel(cfg Config) (zap.AtomicLevel, error) {
	if strings.TrimSpace(cfg.Level) == "" {
		if cfg.Environment.verbose() {
			return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
		}

		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}

	level, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("%w: invalid level %q: %w", ErrInvalidConfig, cfg.Level, err)
	}

	return level, nil
}

func encoderConfig(environment Environment) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	if environment.verbose() {
		enc = zap.NewDevelopmentEncoderConfig()
	}

	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	return enc
}
