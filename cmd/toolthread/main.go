// Package main provides the toolthread CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/richinex/toolthread/cli"
	"github.com/richinex/toolthread/internal/observability"
)

var (
	// Global flags
	provider    string
	configPath  string
	mcpConfig   string
	persona     string
	userID      string
	structured  bool
	verbose     bool
	metricsAddr string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "toolthread",
		Short: "Tool-using LLM agent with per-session conversation threads",
		Long: `A CLI for a tool-using LLM agent.

Each session keeps its own transcript. Within a turn the model may request
tools (weather, time, user lookup); calls in one round run concurrently and
their results are fed back in request order until the model answers.

Personas:
- weather: forecaster that speaks in puns
- time: timezone assistant (--structured prints a TimeReport)
- temperature: temperature lookup (--structured prints a TemperatureReport)`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&mcpConfig, "mcp-config", "", "JSON file of MCP servers whose tools are offered to the agent")
	rootCmd.PersistentFlags().StringVar(&persona, "persona", "weather", "Agent persona (weather, time, temperature)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id placed in the session context")
	rootCmd.PersistentFlags().BoolVar(&structured, "structured", false, "Require the persona's structured answer format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs and turn metadata")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(personasCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options builds cli.Options from the global flags and starts the metrics
// endpoint when requested. The returned func stops it.
func options() (cli.Options, func()) {
	opts := cli.Options{
		Provider:      provider,
		ConfigPath:    configPath,
		MCPConfigPath: mcpConfig,
		Persona:       persona,
		UserID:        userID,
		Structured:    structured,
		Verbose:       verbose,
	}
	if metricsAddr == "" {
		return opts, func() {}
	}

	registry := prometheus.NewRegistry()
	opts.Metrics = observability.NewMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", metricsAddr, "error", err)
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	return opts, stop
}

func chatCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

Type 'exit' or 'quit' to leave, /reset to clear the session and
/user <id> to switch the user id the tools see. With --session the
conversation is stored in SQLite and resumed on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, stop := options()
			defer stop()

			opts.SessionID = sessionID
			opts.DBPath = dbPath
			return cli.Chat(cmd.Context(), opts, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path for storage (default "+cli.DefaultDBPath+" when --session is set)")

	return cmd
}

func askCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, stop := options()
			defer stop()

			opts.SessionID = sessionID
			opts.DBPath = dbPath
			return cli.Ask(cmd.Context(), strings.Join(args, " "), opts, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to continue")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path for storage")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(os.Stdout, verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

func sessionsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListSessions(cmd.Context(), dbPath, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", cli.DefaultDBPath, "Database path for storage")

	return cmd
}

func personasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List available personas",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range cli.ListPersonas() {
				fmt.Printf("  %-12s %s\n", p.Name, p.Description)
			}
		},
	}
}
