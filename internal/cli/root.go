// Package cli implements the adis command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/isometry/adis/internal/config"
	"github.com/isometry/adis/internal/credentials"
	"github.com/isometry/adis/internal/dispatch"
	"github.com/isometry/adis/internal/ldap"
	"github.com/isometry/adis/internal/logging"
	"github.com/isometry/adis/internal/server"
)

// Build-time variables (set via -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const defaultConfigPath = "conf.yml"

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the adis command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "adis",
		Short: "Active Directory integration service",
		Long: `adis runs a fixed set of directory operations (list groups, list group
members, create groups, read user certificates) against configured Active
Directory domains on behalf of callers.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logLevel != "" {
				if err := os.Setenv(logging.LevelEnv, opts.logLevel); err != nil {
					return err
				}
			}
			cmd.SetContext(logging.New(cmd.Context(),
				ldap.Subsystem,
				credentials.Subsystem,
				dispatch.Subsystem,
				server.Subsystem,
			))
			return nil
		},
	}

	cmd.SetVersionTemplate("adis {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (TRACE, DEBUG, INFO, WARN, ERROR); overrides "+logging.LevelEnv)

	cmd.AddCommand(
		newServeCommand(opts),
		newExecCommand(opts),
		newCheckConfigCommand(opts),
		newVersionCommand(),
	)

	return cmd
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// application is everything a dispatch needs, built from configuration.
type application struct {
	config     *config.Config
	table      *credentials.Table
	dispatcher *dispatch.Dispatcher
}

func newApplication(configPath string, opts ...dispatch.Option) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	table, err := credentials.NewTable(cfg.Servers)
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	connectionConfig, err := cfg.ConnectionConfig()
	if err != nil {
		return nil, err
	}

	opts = append([]dispatch.Option{dispatch.WithTimeout(cfg.General.RequestTimeout)}, opts...)

	return &application{
		config:     cfg,
		table:      table,
		dispatcher: dispatch.New(table, dispatch.NewConnector(connectionConfig), opts...),
	}, nil
}
