package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/client"
	"github.com/beamio-APP/BeamioContract/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DB      string

	// Env holds BEAMIO_* settings. Flags given on the command line win.
	Env    config.Env
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the beamio CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "beamio",
		Short: "Deterministic smart-account provisioning",
		Long: `Provision smart accounts at predictable CREATE2 addresses and manage
the facet registry that routes calls to their implementation modules.

State lives in a local SQLite ledger (--db, or BEAMIO_DB). Every command
that changes state runs as one ledger transaction; a reverted transaction
changes nothing and is kept in the history for "beamio trace".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "beamio.db", "path to the ledger database")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewPredictCommand(opts))
	cmd.AddCommand(NewProvisionCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAuthorizeCommand(opts))
	cmd.AddCommand(NewLimitCommand(opts))
	cmd.AddCommand(NewTransferAdminCommand(opts))
	cmd.AddCommand(NewBindCommand(opts))
	cmd.AddCommand(NewRoutesCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCollectionCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup merges environment defaults under the parsed flags and builds the
// logger. Logs go to stderr so JSON output stays clean.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	env, err := config.LoadEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}
	o.Env = env

	flags := cmd.Flags()
	if !flags.Changed("format") {
		o.Format = env.Format
	}
	if !flags.Changed("db") {
		o.DB = env.DB
	}
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	level, err := env.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openClient opens the ledger at --db.
func (o *RootOptions) openClient(ctx context.Context) (*client.Client, error) {
	if o.DB == "" {
		return nil, NewExitError(ExitCommandError, "no database: set --db or BEAMIO_DB")
	}
	c, err := client.Open(ctx, o.DB, o.logger())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return c, nil
}

// parseAddress parses a hex address argument.
func parseAddress(what, s string) (chain.Address, error) {
	addr, err := chain.ParseAddress(s)
	if err != nil {
		return chain.Address{}, WrapExitError(ExitCommandError, "invalid "+what, err)
	}
	return addr, nil
}
