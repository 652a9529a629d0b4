package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/spf13/cobra"

	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/query"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "yaml" | "text"
	Query      string // JMESPath projection of the output
	LogFormat  string // "text" | "json"
	Config     string // path to the configuration file
	Database   string // path to the operation journal
	Endpoint   string // management endpoint override
	APIVersion string // api-version override

	// Test hooks. Nil values select the production implementation.
	Clock      engine.Clock
	IDs        engine.IDGenerator
	Transport  policy.Transporter
	Credential azcore.TokenCredential

	query *query.Path
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the azwait CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command bound to opts, so
// tests can preset the hooks.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "azwait",
		Short: "Issue resource operations and wait for them to settle",
		Long: `azwait issues create and delete requests against a resource management
endpoint and waits for long-running operations to reach a condition.

Mutating commands accept --no-wait to return as soon as the request is
accepted; "resource wait" and "operation wait" poll the resource later until
it is created, updated, deleted, exists, or matches a custom query.

Exit codes:
  0  condition satisfied
  1  wait failed or request failed
  2  invalid command line or configuration
  3  wait timed out or was canceled`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !slices.Contains(ValidLogFormats, opts.LogFormat) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats))
			}
			if opts.Query != "" {
				p, err := query.Compile(opts.Query)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --query", err)
				}
				opts.query = p
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "incorrect usage", err)
	})

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "include per-poll and per-request detail in the log")
	pf.StringVarP(&opts.Format, "format", "o", FormatJSON, "output format (json|yaml|text)")
	pf.StringVar(&opts.Query, "query", "", "JMESPath query applied to the output")
	pf.StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	pf.StringVar(&opts.Config, "config", "", "configuration file (default $AZWAIT_CONFIG)")
	pf.StringVar(&opts.Database, "db", "", "operation journal database")
	pf.StringVar(&opts.Endpoint, "endpoint", "", "management endpoint")
	pf.StringVar(&opts.APIVersion, "api-version", "", "api-version query parameter")

	cmd.AddCommand(NewResourceCommand(opts))
	cmd.AddCommand(NewOperationCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	usageArgs(cmd)

	return cmd
}

// usageArgs makes positional argument errors of cmd and its subcommands
// usage errors, like flag errors.
func usageArgs(cmd *cobra.Command) {
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return WrapExitError(ExitCommandError, "incorrect usage", err)
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		usageArgs(sub)
	}
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Query:     o.query,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger builds the structured logger on stderr. Per-poll detail logs at
// Debug and only shows with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Print(map[string]any{"azwait": ir.CLIVersion})
		},
	}
}
