// Package cli implements the smartsexplore command line: library and molecule
// imports, edge calculation, rendering, graph export and database
// maintenance.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/SMARTSexplore/internal/app"
	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "smartsexplore.yaml"

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputText  = "text"
)

type cliContextKey struct{}

// AppFactory builds the application for one command invocation.
type AppFactory func(ctx context.Context, cfg *config.Config, log logging.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg *config.Config, log logging.Logger) (*app.App, error) {
	return app.New(ctx, cfg, log, app.WithSource("cli"))
}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
}

// CLIContext carries the loaded configuration through the command tree. The
// App is opened on first use and closed after the command ran.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	NoColor      bool

	factory AppFactory
	app     *app.App
}

// App opens the application on first call.
func (c *CLIContext) App(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.factory(ctx, c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// Close releases the App, if one was opened.
func (c *CLIContext) Close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// NewRootCommand creates the root command with every subcommand attached. A
// nil factory uses app.New.
func NewRootCommand(factory AppFactory) *cobra.Command {
	if factory == nil {
		factory = defaultAppFactory
	}
	opts := &RootOptions{}
	state := &CLIContext{factory: factory}

	cmd := &cobra.Command{
		Use:   "smartsexplore",
		Short: "Explore SMARTS pattern libraries and their relationships",
		Long: "smartsexplore imports SMARTS libraries, computes subset and similarity edges\n" +
			"between patterns with SMARTScompare, matches molecule sets against the\n" +
			"patterns and renders the pattern graph.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, state)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./"+defaultConfigFile+" when present)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", OutputTable, "output format (table, json, text)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		NewSMARTSCmd(),
		NewMoleculesCmd(),
		NewDBCmd(),
		newVersionCmd(),
	)
	closeAfterRun(cmd, state)
	return cmd
}

// closeAfterRun closes the App once a command finished, whether it failed or
// not. PersistentPostRun is skipped on errors.
func closeAfterRun(c *cobra.Command, state *CLIContext) {
	if run := c.RunE; run != nil {
		c.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if cerr := state.Close(); err == nil {
				err = cerr
			}
			return err
		}
	}
	for _, sub := range c.Commands() {
		closeAfterRun(sub, state)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The version command needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "smartsexplore %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, state *CLIContext) error {
	switch strings.ToLower(opts.OutputFormat) {
	case OutputTable, OutputJSON, OutputText:
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown output format %q", opts.OutputFormat)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger, err := initLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	logging.SetDefault(logger)

	state.Config = cfg
	state.Logger = logger
	state.OutputFormat = strings.ToLower(opts.OutputFormat)
	state.Verbose = opts.Verbose
	state.NoColor = opts.NoColor

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, state))
	return nil
}

// initConfig loads --config, then ./smartsexplore.yaml, then the environment
// alone.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return config.Load(defaultConfigFile)
	}
	return config.LoadFromEnv()
}

// initLogger logs to stderr in console format so stdout only carries results.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	logCfg := cfg.Log
	logCfg.Format = "console"
	logCfg.OutputPaths = []string{"stderr"}
	logCfg.ErrorOutputPaths = []string{"stderr"}
	if opts.LogLevel != "" {
		logCfg.Level = strings.ToLower(opts.LogLevel)
	}
	if opts.Verbose {
		logCfg.Level = logging.LevelDebug
	}
	return logging.NewLogger(logCfg)
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// appFor returns the App of the running command.
func appFor(cmd *cobra.Command) (*app.App, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	return cliCtx.App(cmd.Context())
}

// Execute runs the CLI with ctx and prints any error to stderr.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand(nil)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// tableProvider is implemented by every command result.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult writes data in the format selected with --output.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	format := OutputJSON
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		format = cliCtx.OutputFormat
	}

	switch format {
	case OutputJSON:
		return printJSON(cmd, data)
	case OutputTable:
		if tp, ok := data.(tableProvider); ok {
			fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
			return nil
		}
	}
	return printText(cmd, data)
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printText prints one "header: value" line per column of each row.
func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	case tableProvider:
		headers := v.TableHeaders()
		for _, row := range v.TableRows() {
			for i, cell := range row {
				if i < len(headers) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", headers[i], cell)
				}
			}
		}
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// PrintError writes err to stderr in red.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes msg to stdout in green.
func PrintSuccess(cmd *cobra.Command, msg string) {
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(rows)
	table.Render()
	return buf.String()
}
