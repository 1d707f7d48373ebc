package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/LerianStudio/lib-txplan/txplan/backoff"
	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/plan"
	"github.com/LerianStudio/lib-txplan/txplan/postgres"
	"github.com/LerianStudio/lib-txplan/txplan/query"
	"github.com/LerianStudio/lib-txplan/txplan/transaction"
	"github.com/LerianStudio/lib-txplan/txplan/zap"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite3"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Driver      string
	DSN         string
	Propagation string
	Timeout     time.Duration
	Attempts    int
}

// StepOutput is one step's result in run output.
type StepOutput struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Shape string `json:"shape"`
	Value any    `json:"value"`
}

// RunResult is the data payload of a successful run.
type RunResult struct {
	PlanID string       `json:"plan_id"`
	Steps  []StepOutput `json:"steps"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Execute a plan file in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", envOr("TXPLAN_DRIVER", driverPostgres), "database driver (pgx|sqlite3)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", envOr("TXPLAN_DSN", ""), "database connection string")
	cmd.Flags().StringVar(&opts.Propagation, "propagation", "required", "propagation (required|requires_new|nested)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "transaction timeout (0 uses the default)")
	cmd.Flags().IntVar(&opts.Attempts, "connect-attempts", backoff.DefaultPolicy().Attempts, "connection attempts before giving up")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, path string) error {
	out := &formatter{format: opts.Format, out: cmd.OutOrStdout()}

	propagation, err := transaction.ParsePropagation(opts.Propagation)
	if err != nil {
		return commandFailure(out, CodeLoad, "invalid flags", err)
	}

	dialect, err := query.ParseDialect(opts.Driver)
	if err != nil {
		return commandFailure(out, CodeLoad, "invalid flags", err)
	}

	if opts.DSN == "" {
		return commandFailure(out, CodeLoad, "invalid flags", errors.New("--dsn or TXPLAN_DSN is required"))
	}

	file, p, err := loadPlan(path, dialect)
	if err != nil {
		return reportPlanFileError(out, file, err)
	}

	logger, err := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return commandFailure(out, CodeLoad, "invalid flags", err)
	}

	defer func() { _ = logger.Sync(context.Background()) }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	retry := backoff.DefaultPolicy()
	retry.Attempts = max(opts.Attempts, 1)

	connector, closeFn, err := openConnector(ctx, opts.Driver, opts.DSN, retry, logger)
	if err != nil {
		return commandFailure(out, CodeConnection, "database unavailable", err)
	}
	defer closeFn()

	managerOpts := []transaction.Option{transaction.WithLogger(logger)}
	if opts.Timeout > 0 {
		managerOpts = append(managerOpts, transaction.WithTransactionTimeout(opts.Timeout))
	}

	manager, err := transaction.NewManager(connector, managerOpts...)
	if err != nil {
		return commandFailure(out, CodeTx, "transaction manager", err)
	}

	executor, err := plan.NewExecutor(manager, plan.WithLogger(logger))
	if err != nil {
		return commandFailure(out, CodeTx, "plan executor", err)
	}

	result, err := executor.Execute(ctx, p, propagation)
	if err != nil {
		return reportExecutionError(out, file, err)
	}

	return writeRunResult(out, cmd.ErrOrStderr(), opts.Verbose, file, result)
}

//nolint:ireturn
func newLogger(opts *RootOptions, out io.Writer) (log.Logger, error) {
	env := zap.EnvironmentProduction
	level := opts.LogLevel

	if opts.Verbose {
		env = zap.EnvironmentLocal
	} else if level == "" {
		level = "warn"
	}

	logger, err := zap.New(zap.Config{Environment: env, Level: level, OTelLibraryName: "txplan", Output: out})
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// openConnector connects to the database behind driver, retrying on the given policy.
// The close function is set whenever err is nil.
//
//nolint:ireturn
func openConnector(ctx context.Context, driver, dsn string, retry backoff.Policy, logger log.Logger) (transaction.Connector, func(), error) {
	breaker := transaction.WithCircuitBreaker(transaction.NewBeginBreaker(driver, transaction.DefaultBreakerConfig()))

	switch driver {
	case driverSQLite:
		db, err := sql.Open(driverSQLite, dsn)
		if err != nil {
			return nil, nil, err
		}

		closeFn := func() { _ = db.Close() }

		if err := backoff.Retry(ctx, retry, db.PingContext); err != nil {
			closeFn()

			return nil, nil, err
		}

		connector, err := transaction.NewSQLConnector(db, breaker)
		if err != nil {
			closeFn()

			return nil, nil, err
		}

		return connector, closeFn, nil
	default:
		client, err := postgres.New(postgres.Config{PrimaryDSN: dsn, Logger: logger})
		if err != nil {
			return nil, nil, err
		}

		closeFn := func() { _ = client.Close() }

		err = backoff.Retry(ctx, retry, func(ctx context.Context) error {
			if err := client.Connect(ctx); err != nil {
				logger.Log(ctx, log.LevelWarn, "database connection attempt failed", log.Err(err))

				return err
			}

			return nil
		})
		if err != nil {
			closeFn()

			return nil, nil, err
		}

		connector, err := transaction.NewResolverConnector(client, breaker)
		if err != nil {
			closeFn()

			return nil, nil, err
		}

		return connector, closeFn, nil
	}
}

func commandFailure(out *formatter, code, message string, err error) error {
	if writeErr := out.failure(Failure{Code: code, Message: err.Error()}); writeErr != nil {
		return writeErr
	}

	return WrapExitError(ExitCommandError, message, err)
}

func reportExecutionError(out *formatter, file *PlanFile, err error) error {
	failure := Failure{Code: CodeTx, Message: err.Error()}

	var depErr *plan.DependencyError
	var queryErr *plan.QueryError

	switch {
	case errors.As(err, &depErr):
		failure.Code = CodeDependency
		failure.Message = fmt.Sprintf("%s: %v", plan.ErrorKind(err), err)
	case errors.As(err, &queryErr):
		failure.Code = CodeQuery
	}

	var stepErr *plan.StepError
	if errors.As(err, &stepErr) {
		failure.StepIndex = &stepErr.StepIndex
		failure.StepName = file.stepName(stepErr.StepIndex)
	}

	if writeErr := out.failure(failure); writeErr != nil {
		return writeErr
	}

	return WrapExitError(ExitFailure, "plan aborted", err)
}

func writeRunResult(out *formatter, stderr io.Writer, verbose bool, file *PlanFile, result *plan.Result) error {
	data := RunResult{PlanID: result.PlanID().String(), Steps: make([]StepOutput, 0, result.Len())}

	for i := 0; i < result.Len(); i++ {
		stored, _ := result.Step(i)

		data.Steps = append(data.Steps, StepOutput{
			Index: i,
			Name:  file.stepName(i),
			Shape: stored.Shape().String(),
			Value: stored.Value(),
		})
	}

	if out.json() {
		return out.encode(Response{Status: "ok", Data: data})
	}

	if verbose {
		fmt.Fprintf(stderr, "plan %s committed\n", data.PlanID)
	}

	for _, step := range data.Steps {
		if _, err := fmt.Fprintf(out.out, "%s (%s): %v\n", step.Name, step.Shape, step.Value); err != nil {
			return err
		}
	}

	return nil
}
