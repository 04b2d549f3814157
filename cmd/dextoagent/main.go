// Package main is dextoagent's reference CLI: a thin cobra wrapper around
// internal/dexto.DextoAgent. Spec §1 places transports out of core scope, so
// this exists to prove the facade end to end, not as a product surface.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dexto-ai/dexto-core/internal/dexto"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "dextoagent",
		Short:   "Reference CLI for the Dexto agent runtime",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "dextoagent.yaml", "Path to YAML configuration file")

	root.AddCommand(
		buildRunCmd(&configPath),
		buildSessionsCmd(&configPath),
		buildMCPCmd(&configPath),
	)
	return root
}

func newAgent(ctx context.Context, configPath string) (*dexto.DextoAgent, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	agent, err := dexto.NewDextoAgent(cfg)
	if err != nil {
		return nil, fmt.Errorf("build agent: %w", err)
	}
	if err := agent.Start(ctx); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}
	return agent, nil
}

func buildRunCmd(configPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive stdin/stdout run loop against one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := newAgent(ctx, *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()

			if sessionID == "" {
				meta, err := agent.CreateSession(ctx, "")
				if err != nil {
					return fmt.Errorf("create session: %w", err)
				}
				sessionID = meta.ID
			}

			return runREPL(ctx, agent, sessionID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Resume an existing session instead of creating one")
	return cmd
}

func runREPL(ctx context.Context, agent *dexto.DextoAgent, sessionID string, out io.Writer) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintf(out, "session %s ready\n", sessionID)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		outcome, err := agent.Run(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if outcome.Queued {
			fmt.Fprintln(out, "queued (a run is already in progress)")
			continue
		}
		fmt.Fprintln(out, outcome.Text)
	}
	return scanner.Err()
}

func buildSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(configPath), buildSessionsDeleteCmd(configPath))
	return cmd
}

func buildSessionsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := newAgent(ctx, *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()

			sessions, err := agent.ListSessions(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		},
	}
}

func buildSessionsDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := newAgent(ctx, *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()
			return agent.DeleteSession(ctx, args[0])
		},
	}
}

func buildMCPCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured MCP servers",
	}
	cmd.AddCommand(buildMCPConnectCmd(configPath))
	return cmd
}

func buildMCPConnectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect every configured MCP server and print \"connected\" on success",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := newAgent(ctx, *configPath)
			if err != nil {
				return err
			}
			defer agent.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "connected")
			return nil
		},
	}
}
