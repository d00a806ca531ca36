package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/relaypilot/relaypilot/pkg/client"
	"github.com/relaypilot/relaypilot/pkg/template"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func buildRoot() *cobra.Command {
	root := createRootCommand()
	root.AddCommand(
		createServeCommand(&ServeFlags{}),
		createStatusCommand(&StatusFlags{}),
		createReloadCommand(&ClientFlags{}),
		createResetCommand(&ResetFlags{}),
		createInitCommand(&InitFlags{}),
		createVersionCommand(),
	)
	return root
}

func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relaypilot",
		Short: "Supervisor for the relay worker services",
		Long: `Relaypilot starts, monitors and restarts the relay worker services on
one host, rate-limiting crash loops and exposing a status endpoint.

Examples:
  relaypilot init --output=relaypilot.toml
  relaypilot serve --config=relaypilot.toml
  relaypilot status
  relaypilot reload`,
		SilenceUsage: true,
	}
}

func createServeCommand(flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor in the foreground",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(flags.ConfigPath)
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "relaypilot.toml", "path to TOML config file")
	return cmd
}

func addClientFlags(cmd *cobra.Command, flags *ClientFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon API base URL (default http://127.0.0.1:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 0, "request timeout")
}

func newAPIClient(flags ClientFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	return client.New(cfg)
}

func requireReachable(c *client.Client) error {
	if !c.IsReachable(context.Background()) {
		return fmt.Errorf("daemon not reachable - start it first with 'relaypilot serve'")
	}
	return nil
}

func createStatusCommand(flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervisor status snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newAPIClient(flags.ClientFlags)
			if err := requireReachable(c); err != nil {
				return err
			}
			if flags.Worker != "" {
				ws, err := c.WorkerStatus(context.Background(), flags.Worker)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ws)
			}
			st, err := c.Status(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	addClientFlags(cmd, &flags.ClientFlags)
	cmd.Flags().StringVar(&flags.Worker, "worker", "", "show one worker instead of the full snapshot")
	return cmd
}

func createReloadCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask the daemon to reload its configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newAPIClient(*flags)
			if err := requireReachable(c); err != nil {
				return err
			}
			if err := c.Reload(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "configuration reloaded")
			return nil
		},
	}
	addClientFlags(cmd, flags)
	return cmd
}

func createResetCommand(flags *ResetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <worker>",
		Short: "Clear a fail-stopped worker's restart window and start it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(flags.ClientFlags)
			if err := requireReachable(c); err != nil {
				return err
			}
			if err := c.ResetWorker(context.Background(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "worker %s reset\n", args[0])
			return nil
		},
	}
	addClientFlags(cmd, &flags.ClientFlags)
	return cmd
}

func createInitCommand(flags *InitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := template.DefaultParams()
			if flags.Command != "" {
				p.RelayCommand = flags.Command
			}
			if flags.Port != 0 {
				p.RelayPort = flags.Port
			}
			if err := template.Write(flags.Output, template.Type(flags.Type), p, flags.Force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flags.Output)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Output, "output", "relaypilot.toml", "destination path")
	cmd.Flags().StringVar(&flags.Type, "type", string(template.TypeFull), "template variant (minimal|full)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&flags.Command, "relay-command", "", "relay worker launch command")
	cmd.Flags().IntVar(&flags.Port, "relay-port", 0, "relay worker port")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relaypilot version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "relaypilot %s\n", version)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
