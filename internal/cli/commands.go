package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"runtime"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/spf13/cobra"

	"github.com/isometry/adis/internal/dispatch"
	"github.com/isometry/adis/internal/metrics"
	"github.com/isometry/adis/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long:  `Serves POST /execute, GET /health and GET /metrics until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m := metrics.New()

			app, err := newApplication(root.configPath, dispatch.WithObserver(m))
			if err != nil {
				return err
			}

			tflog.Info(ctx, "Starting adis", map[string]any{
				"version": Version,
				"domains": app.table.Domains(),
			})

			ln, err := net.Listen("tcp", app.config.General.ListenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", app.config.General.ListenAddr, err)
			}

			return server.Serve(ctx, ln, server.NewRouter(server.RouterOptions{
				Executor: app.dispatcher,
				APIKey:   app.config.General.APIKey,
				Version:  Version,
				Metrics:  m.Handler(),
			}))
		},
	}
}

type execOptions struct {
	method string
	params string
}

func newExecCommand(root *rootOptions) *cobra.Command {
	opts := &execOptions{}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run one operation and print the response envelope",
		Example: `  adis exec --method list_groups_by_ou \
    --params '{"ou_dn":"OU=Groups,DC=corp,DC=example","domain":"dc1.corp.example"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(root.configPath)
			if err != nil {
				return err
			}

			envelope, execErr := app.dispatcher.Execute(cmd.Context(), dispatch.Request{
				Method:     opts.method,
				Parameters: json.RawMessage(opts.params),
			})

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(envelope); err != nil {
				return err
			}

			return execErr
		},
	}

	cmd.Flags().StringVarP(&opts.method, "method", "m", "", "Operation to run")
	cmd.Flags().StringVarP(&opts.params, "params", "p", "{}", "Operation parameters as a JSON object")
	_ = cmd.MarkFlagRequired("method")

	return cmd
}

func newCheckConfigCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(root.configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK: %s\n", root.configPath)
			fmt.Fprintf(out, "listen address:   %s\n", app.config.General.ListenAddr)
			fmt.Fprintf(out, "request timeout:  %s\n", app.config.General.RequestTimeout)
			fmt.Fprintf(out, "domains (%d):\n", len(app.table.Domains()))
			fmt.Fprint(out, app.table.Describe())
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "adis %s\n", Version)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
