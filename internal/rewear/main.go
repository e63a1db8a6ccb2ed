package rewear

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	infoColor  = color.New(color.FgCyan)
)

const (
	envConfigFile     = "REWEAR_CONFIG"
	defaultConfigFile = "application.properties"
)

type Config struct {
	ConfigFile  string
	HistoryFile string
	NoHistory   bool
	Verbose     bool
	Timeout     time.Duration

	Report          ReportOptions
	ContinueOnError bool

	QueryLimit int

	HistoryLimit  int
	HistoryOutput string
	HistoryReport string
	HistoryFailed bool

	ResetTarget string
	Yes         bool
	DryRun      bool

	Getenv func(string) string
}

func newConfig(getenv func(string) string) *Config {
	cfg := &Config{
		ConfigFile:    defaultConfigFile,
		HistoryFile:   defaultHistoryFile(),
		Report:        DefaultReportOptions(),
		QueryLimit:    100,
		HistoryLimit:  20,
		HistoryOutput: "table",
		ResetTarget:   "all",
		Getenv:        getenv,
	}
	if v := strings.TrimSpace(getenv(envConfigFile)); v != "" {
		cfg.ConfigFile = v
	}
	return cfg
}

func (c *Config) credentials() (Credentials, error) {
	props, err := loadProperties(c.ConfigFile)
	if err != nil {
		return Credentials{}, err
	}
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return ResolveCredentials(getenv, props), nil
}

func (c *Config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}

// Run executes the CLI with the process arguments and standard streams.
func Run() error {
	return execute(newConfig(os.Getenv), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(cfg *Config, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := newRootCommand(cfg)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(context.Background())
}

func newRootCommand(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "rewear",
		Short: "Print the ReWear sales reports",
		Long: `rewear runs the fixed ReWear report battery against the shop database
and prints each result set as a pipe-delimited table.

Connection settings are resolved per value from DB_URL, DB_USER and DB_PASS,
then db.url, db.user and db.pass in the config file, then built-in defaults.`,
		Example: `  # Run every report
  DB_PASS=secret rewear

  # Run two reports against a local SQLite copy
  DB_URL=./rewear.db rewear report category-counts best-month

  # Ad-hoc read-only query
  rewear query "SELECT city, COUNT(*) FROM customers GROUP BY city"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReports(cmd.Context(), cfg, nil, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to the db.url/db.user/db.pass properties file (env REWEAR_CONFIG)")
	pf.StringVar(&cfg.HistoryFile, "history-file", cfg.HistoryFile, "Path to the run history JSONL file")
	pf.BoolVar(&cfg.NoHistory, "no-history", cfg.NoHistory, "Do not record report runs")
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Print connection details to stderr")
	pf.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall deadline for the run, 0 for none (e.g. 30s)")

	addReportFlags(root, cfg)

	root.AddCommand(
		newReportCommand(cfg),
		newQueryCommand(cfg),
		newSchemaCommand(cfg),
		newHistoryCommand(cfg),
		newSetCommand(cfg),
		newShowCommand(cfg),
		newResetCommand(cfg),
	)
	return root
}

func addReportFlags(cmd *cobra.Command, cfg *Config) {
	fs := cmd.Flags()
	fs.StringVar(&cfg.Report.Brand, "brand", cfg.Report.Brand, "Brand name for the customers-variant report")
	fs.StringVar(&cfg.Report.Color, "color", cfg.Report.Color, "Variant color for the customers-variant report")
	fs.StringVar(&cfg.Report.Size, "size", cfg.Report.Size, "Variant size for the customers-variant report")
	fs.StringVar(&cfg.Report.Category, "category", cfg.Report.Category, "Category name for the customers-variant report")
	fs.Float64Var(&cfg.Report.MinCityTotal, "min-city-total", cfg.Report.MinCityTotal, "Cities must exceed this order value to be listed")
	fs.IntVar(&cfg.Report.TopLimit, "top", cfg.Report.TopLimit, "Number of products in the top-products report")
	fs.BoolVar(&cfg.ContinueOnError, "continue-on-error", cfg.ContinueOnError, "Keep running the remaining reports after one fails")
}

func newReportCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [report...]",
		Short: "Run all or selected reports",
		Long: fmt.Sprintf(`Run the selected reports in catalog order. With no arguments every report runs.
Reports may be named by key or number: %s.`, strings.Join(reportKeys(), ", ")),
		ValidArgs: reportKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReports(cmd.Context(), cfg, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	addReportFlags(cmd, cfg)
	return cmd
}

func newQueryCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql> [arg...]",
		Short: "Run one read-only statement through the report formatter",
		Long: `Run one read-only statement through the report formatter.

Extra arguments are bound to '?' placeholders in order. On PostgreSQL the
placeholders are rewritten to $1, $2, ... when arguments are given, and a '?'
inside a string literal is rewritten too; pass no arguments for such statements.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdHocQuery(cmd.Context(), cfg, args[0], args[1:], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVar(&cfg.QueryLimit, "limit", cfg.QueryLimit, "Append LIMIT when the statement has none, 0 to disable")
	return cmd
}

func newSchemaCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List database tables and check the ones the reports need",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newHistoryCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded report runs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.HistoryOutput = strings.ToLower(strings.TrimSpace(cfg.HistoryOutput))
			if cfg.HistoryOutput != "table" && cfg.HistoryOutput != "json" {
				return fmt.Errorf("unsupported --output %q (expected table|json)", cfg.HistoryOutput)
			}
			if cfg.HistoryLimit <= 0 {
				return errors.New("--limit must be > 0")
			}
			return validateHistoryFilter(cfg.HistoryReport)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&cfg.HistoryLimit, "limit", cfg.HistoryLimit, "Number of history entries to show")
	cmd.Flags().StringVar(&cfg.HistoryOutput, "output", cfg.HistoryOutput, "Output format: table or json")
	cmd.Flags().StringVar(&cfg.HistoryReport, "report", cfg.HistoryReport, "Only show runs of this report key (or \"query\")")
	cmd.Flags().BoolVar(&cfg.HistoryFailed, "failed", cfg.HistoryFailed, "Only show failed runs")
	return cmd
}

func newSetCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <url|user|pass> <value>",
		Short: "Save a connection setting to the config file",
		Example: `  rewear set url jdbc:mysql://db.internal:3306/rewear_db?useSSL=false
  rewear set user reporter
  rewear set pass s3cret`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := propertyKeyFor(args[0])
			if err != nil {
				return err
			}
			value := strings.TrimSpace(args[1])
			if value == "" {
				return fmt.Errorf("%s cannot be empty", key)
			}
			if err := saveProperty(cfg.ConfigFile, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", key, cfg.ConfigFile)
			return nil
		},
	}
}

func newShowCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved connection settings and where each came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cfg, cmd.OutOrStdout())
		},
	}
}

func newResetCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "reset [config|history|all]",
		Short:     "Delete the config file, the history file or both",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "history", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.ResetTarget = strings.ToLower(strings.TrimSpace(args[0]))
			}
			return runReset(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVarP(&cfg.Yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "Preview reset actions without deleting files")
	return cmd
}

// withConnection resolves credentials, opens the single connection for the
// run and releases it on every return path.
func withConnection(ctx context.Context, cfg *Config, stderr io.Writer, fn func(context.Context, *Connection) error) (err error) {
	creds, err := cfg.credentials()
	if err != nil {
		return err
	}

	ctx, cancel := cfg.withTimeout(ctx)
	defer cancel()

	conn, err := Connect(ctx, creds)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close connection: %w", cerr)
		}
	}()

	if cfg.Verbose {
		infoColor.Fprintf(stderr, "Connected to %s (%s)\n", redactLocation(creds.URL), conn.Dialect.Name)
	}

	return fn(ctx, conn)
}

func runReports(ctx context.Context, cfg *Config, keys []string, stdout, stderr io.Writer) error {
	if err := cfg.Report.validate(); err != nil {
		return err
	}
	selected, err := selectReports(keys)
	if err != nil {
		return err
	}

	return withConnection(ctx, cfg, stderr, func(ctx context.Context, conn *Connection) error {
		return runCatalog(ctx, cfg, conn.Conn(), conn.Dialect, selected, stdout, stderr)
	})
}

// runCatalog prints each report in turn. A failing report stops the run
// unless ContinueOnError is set, in which case the failures are joined.
func runCatalog(ctx context.Context, cfg *Config, db DBTX, d Dialect, reports []Report, stdout, stderr io.Writer) error {
	runner := NewRunner(db, stdout)

	var failed []error
	for i, rep := range reports {
		if i > 0 {
			if err := runner.Println(""); err != nil {
				return err
			}
		}
		if err := runner.Println(rep.Heading(cfg.Report)); err != nil {
			return err
		}

		start := time.Now()
		rows, err := rep.run(ctx, runner, d, cfg.Report)
		recordHistoryBestEffort(cfg, stderr, newHistoryEntry(start, rep.Key, d.Name, rows, err))

		if err == nil {
			continue
		}
		err = fmt.Errorf("report %d (%s): %w", rep.Number, rep.Key, err)
		if !cfg.ContinueOnError {
			return err
		}
		errorColor.Fprintf(stderr, "%v\n", err)
		failed = append(failed, err)
	}

	return errors.Join(failed...)
}

func runAdHocQuery(ctx context.Context, cfg *Config, query string, args []string, stdout, stderr io.Writer) error {
	query, err := prepareAdHocQuery(query, cfg.QueryLimit)
	if err != nil {
		return err
	}

	bound := make([]any, len(args))
	for i, a := range args {
		bound[i] = a
	}

	return withConnection(ctx, cfg, stderr, func(ctx context.Context, conn *Connection) error {
		start := time.Now()
		rows, err := NewRunner(conn.Conn(), stdout).Run(ctx, "== query ==", query, bound...)
		recordHistoryBestEffort(cfg, stderr, newHistoryEntry(start, adHocReportKey, conn.Dialect.Name, rows, err))

		if err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
		return nil
	})
}

func runSchema(ctx context.Context, cfg *Config, stdout, stderr io.Writer) error {
	return withConnection(ctx, cfg, stderr, func(ctx context.Context, conn *Connection) error {
		tables, err := introspectSchema(ctx, conn.Conn(), conn.Dialect)
		if err != nil {
			return err
		}

		fmt.Fprintln(stdout, renderSchema(tables))

		if missing := missingTables(tables); len(missing) > 0 {
			return fmt.Errorf("missing required tables: %s", strings.Join(missing, ", "))
		}
		fmt.Fprintln(stdout, "All report tables present.")
		return nil
	})
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".rewear"
	}
	return filepath.Join(home, ".rewear")
}

func defaultHistoryFile() string {
	return filepath.Join(defaultConfigDir(), "history.jsonl")
}
