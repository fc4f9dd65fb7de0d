// Package cli implements the kipx command line interface: one-shot and
// interactive patent search, CSV export and the assignee directory.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
)

// Build metadata, injected via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions carries the values of the persistent flags shared by every
// subcommand.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
	NoColor    bool
}

// CLIContext is what persistentPreRun leaves behind for subcommands: the
// loaded configuration and a logger writing to stderr, so stdout stays
// reserved for command output.
type CLIContext struct {
	Config *config.Config
	Logger logging.Logger
}

type cliContextKey struct{}

// Stack bundles the backends a subcommand works against. Files is nil when
// no object store is configured.
type Stack struct {
	Search *search.Service
	Engine *export.Engine
	Files  export.FileStore
}

// ConnectFunc dials the configured backends for a single command run and
// returns the stack plus a cleanup releasing the connections. It runs
// inside RunE, after flag validation, so commands like "kipx version"
// never open a connection.
type ConnectFunc func(cmd *cobra.Command) (*Stack, func(), error)

// CommandDependencies is injected by main; tests substitute an in-memory
// connect.
type CommandDependencies struct {
	Connect ConnectFunc
}

// NewRootCommand builds the bare kipx root with persistent flags and
// version metadata. Subcommands are attached by RegisterCommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kipx",
		Short: "Patent search and export toolkit",
		Long: `kipx searches the patent store by keyword, assignee and filing-date
range, browses result pages interactively and exports matches as CSV,
either to a local file or to the configured object store.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: config.yaml in ., ~/.kipx, /etc/kipx)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging (implies --log-level=debug)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	return cmd
}

// persistentPreRun loads configuration, builds the stderr logger and stores
// both on the command context for GetCLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	cliCtx := &CLIContext{Config: cfg, Logger: logger}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads the file named by --config, or walks the search path.
// With no file anywhere the built-in defaults apply, so read-only commands
// work without any configuration.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(config.WithConfigPath(opts.ConfigPath))
	}

	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".kipx"))
	}
	paths = append(paths, "/etc/kipx")
	return config.Load(config.WithSearchPaths(paths...))
}

// initLogger builds a console logger on stderr so tables and CSV on stdout
// stay pipeable.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext retrieves the CLIContext stored by persistentPreRun.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cliCtx, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, fmt.Errorf("command context not initialized")
	}
	return cliCtx, nil
}

// RegisterCommands attaches every subcommand to the root.
func RegisterCommands(root *cobra.Command, deps CommandDependencies) {
	root.AddCommand(
		NewSearchCmd(deps.Connect),
		NewExportCmd(deps.Connect),
		NewAssigneesCmd(deps.Connect),
		NewVersionCmd(),
	)
}

// Execute builds the full command tree and runs it. Errors are printed to
// stderr once, here, because SilenceErrors suppresses cobra's own print.
func Execute(deps CommandDependencies) error {
	root := NewRootCommand()
	RegisterCommands(root, deps)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %s\n", err.Error())
		return err
	}
	return nil
}

// printJSON renders v with two-space indentation on the command's stdout.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
