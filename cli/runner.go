// Command execution for CLI commands.
//
// Information Hiding:
// - Agent, store and provider setup hidden
// - REPL command parsing hidden
// - Output formatting hidden

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/richinex/toolthread/agent"
	"github.com/richinex/toolthread/config"
	"github.com/richinex/toolthread/internal/observability"
	"github.com/richinex/toolthread/llm"
	"github.com/richinex/toolthread/mcp"
	"github.com/richinex/toolthread/model"
	"github.com/richinex/toolthread/storage"
	"github.com/richinex/toolthread/tools"
)

// DefaultDBPath is where chat sessions are persisted when --session is set.
const DefaultDBPath = ".toolthread/sessions.db"

// DefaultSession is the chat session used when none is named.
const DefaultSession = "default"

// Options holds CLI execution options.
type Options struct {
	Provider   string
	ConfigPath string
	// MCPConfigPath names an Anthropic-style JSON file of MCP servers,
	// merged over the servers in the settings file.
	MCPConfigPath string
	Persona       string
	UserID        string
	Structured    bool
	SessionID     string
	DBPath        string
	Verbose       bool

	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Client replaces the provider built from settings.
	Client llm.ModelClient
	// Registry replaces the built-in tools.
	Registry *tools.Registry
}

// runtime is everything one command needs to submit turns.
type runtime struct {
	agent   *agent.Agent
	backend *storage.SqliteStorage
	servers *mcp.Manager
	logger  *slog.Logger
}

func (r *runtime) Close() {
	if r.servers != nil {
		r.servers.Close()
	}
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			r.logger.Warn("close session database", "error", err)
		}
	}
}

func newRuntime(ctx context.Context, opts Options, prompter tools.Prompter) (*runtime, error) {
	settings, err := config.Load(opts.ConfigPath, opts.Provider)
	if err != nil {
		return nil, err
	}

	persona, err := ParsePersona(opts.Persona)
	if err != nil {
		return nil, err
	}
	agentConfig, err := persona.Config(settings.Agent.MaxRounds, opts.Structured)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logConfig := settings.LoggerConfig()
		if opts.Verbose {
			logConfig.Level = "debug"
		}
		logger = observability.NewLogger(logConfig)
	}

	client := opts.Client
	if client == nil {
		built, err := settings.ProviderBuilder().
			Logger(logger).
			Metrics(opts.Metrics).
			Client(settings.ClientConfig())
		if err != nil {
			return nil, err
		}
		client = built
	}

	registry := opts.Registry
	if registry == nil {
		registry, err = tools.WithDefaults(tools.DefaultsConfig{
			HTTPTimeoutSecs: settings.Tools.TimeoutSecs,
			Prompter:        prompter,
		})
		if err != nil {
			return nil, err
		}
	}

	rt := &runtime{logger: logger}
	if err := rt.connectServers(ctx, settings.MCPConfig(), opts.MCPConfigPath, registry); err != nil {
		return nil, err
	}

	var backend storage.ConversationStorage
	if opts.DBPath != "" {
		rt.backend, err = storage.OpenSqlite(opts.DBPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		backend = rt.backend
	}

	store := storage.NewSessionStore(backend).WithMetrics(opts.Metrics)
	invoker := tools.NewInvoker(registry, settings.InvokerConfig()).
		WithLogger(logger).
		WithMetrics(opts.Metrics)

	rt.agent = agent.New(agentConfig, client, registry, store,
		agent.WithLogger(logger),
		agent.WithMetrics(opts.Metrics),
		agent.WithInvoker(invoker),
	)
	return rt, nil
}

// connectServers starts the configured MCP servers and registers their tools.
func (r *runtime) connectServers(ctx context.Context, cfg *mcp.Config, path string, registry *tools.Registry) error {
	if path != "" {
		fromFile, err := mcp.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg.Merge(fromFile)
	}
	if len(cfg.MCPServers) == 0 {
		return nil
	}

	servers, err := mcp.Connect(ctx, cfg, r.logger)
	if err != nil {
		return err
	}
	r.servers = servers
	if err := servers.Register(registry); err != nil {
		r.Close()
		return err
	}
	r.logger.Debug("mcp tools registered", "servers", len(cfg.MCPServers), "tools", len(servers.Tools()))
	return nil
}

func userContext(userID string) model.Values {
	return model.Values{tools.UserIDKey: userID}
}

// Ask submits a single question and prints the answer.
func Ask(ctx context.Context, question string, opts Options, in io.Reader, out io.Writer) error {
	console := NewConsole(in, out)
	defer console.Close()

	rt, err := newRuntime(ctx, opts, console)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = "ask-" + uuid.NewString()
	}

	var turnOpts []agent.TurnOption
	if opts.UserID != "" {
		turnOpts = append(turnOpts, agent.WithSessionContext(userContext(opts.UserID)))
	}

	res, err := rt.agent.SubmitTurn(ctx, sessionID, question, turnOpts...)
	if err != nil {
		return err
	}
	return printResult(out, res, opts.Verbose)
}

// Chat starts an interactive chat session.
//
// Commands: quit or exit leaves, /reset clears the session, /user <id>
// switches the user id the tools see.
func Chat(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	console := NewConsole(in, out)
	defer console.Close()

	if opts.SessionID != "" && opts.DBPath == "" {
		opts.DBPath = DefaultDBPath
	}
	rt, err := newRuntime(ctx, opts, console)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = DefaultSession
	}

	history, err := rt.agent.Transcript(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if len(history) > 0 {
		fmt.Fprintf(out, "Resuming session '%s' (%d turns)\n\n", sessionID, len(history))
	}

	// user is the context bag to apply; dirty means the session has not
	// committed it yet.
	var user model.Values
	dirty := false
	if opts.UserID != "" {
		user, dirty = userContext(opts.UserID), true
	}

	fmt.Fprintf(out, "Chat with %s. Type 'exit' to quit, /reset to start over, /user <id> to switch user.\n\n", rt.agent.Name())

	for {
		fmt.Fprint(out, "> ")
		line, err := console.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return nil
		case input == "/reset":
			if err := rt.agent.ResetSession(ctx, sessionID, user); err != nil {
				return err
			}
			dirty = false
			fmt.Fprintln(out, "Session reset.")
			continue
		case strings.HasPrefix(input, "/user"):
			id := strings.TrimSpace(strings.TrimPrefix(input, "/user"))
			if id == "" {
				fmt.Fprintln(out, "Usage: /user <id>")
				continue
			}
			user, dirty = userContext(id), true
			fmt.Fprintf(out, "Now acting as user %s.\n", id)
			continue
		}

		var turnOpts []agent.TurnOption
		if dirty {
			turnOpts = append(turnOpts, agent.WithSessionContext(user))
		}

		res, err := rt.agent.SubmitTurn(ctx, sessionID, input, turnOpts...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reportTurnError(out, err)
			continue
		}
		// The context bag persists with the session once a turn commits.
		dirty = false

		fmt.Fprintln(out)
		if err := printResult(out, res, opts.Verbose); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
}

func reportTurnError(out io.Writer, err error) {
	var limitErr *agent.RoundLimitError
	switch {
	case errors.As(err, &limitErr):
		fmt.Fprintf(out, "\nGave up after %d tool rounds. The conversation so far was kept.\n\n", limitErr.Limit)
	case errors.Is(err, llm.ErrModel):
		fmt.Fprintf(out, "\nModel error: %v\nNothing was recorded; try again.\n\n", err)
	default:
		fmt.Fprintf(out, "\nError: %v\n\n", err)
	}
}

// printResult writes the answer. Structured records are indented JSON.
func printResult(out io.Writer, res agent.Result, verbose bool) error {
	if res.IsStructured() {
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Structured, "", "  "); err != nil {
			return fmt.Errorf("format structured result: %w", err)
		}
		fmt.Fprintln(out, buf.String())
	} else {
		fmt.Fprintln(out, res.Text)
	}

	if verbose {
		printMetadata(out, res.Metadata)
	}
	return nil
}

const maxArgumentLen = 80

func printMetadata(out io.Writer, meta agent.Metadata) {
	fmt.Fprintln(out, "\n--- Turn ---")
	fmt.Fprintf(out, "Rounds: %d, model calls: %d, %dms\n", meta.Rounds, meta.ModelCalls, meta.ExecutionTimeMs)
	for _, stat := range meta.ToolCalls {
		status := "ok"
		if !stat.Success {
			status = "failed"
		}
		fmt.Fprintf(out, "  %s [%s] %s (%dms, %d bytes)\n", stat.Name, stat.CallID, status, stat.DurationMs, stat.OutputSize)
	}
	usage := meta.TokenUsage
	fmt.Fprintf(out, "Tokens: %d prompt + %d completion = %d\n", usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	fmt.Fprintln(out, "------------")
}

// ListTools lists all available tools.
func ListTools(out io.Writer, verbose bool) error {
	registry, err := tools.WithDefaults(tools.DefaultsConfig{
		Prompter: tools.PrompterFunc(func(context.Context, string) (string, error) { return "", nil }),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Available tools:")
	fmt.Fprintln(out)

	for _, meta := range registry.List() {
		fmt.Fprintf(out, "  %s\n", meta.Name)
		fmt.Fprintf(out, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(out, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(out, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, truncateString(param.Description, maxArgumentLen))
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

// ListSessions prints the sessions persisted in dbPath.
func ListSessions(ctx context.Context, dbPath string, out io.Writer) error {
	store, err := storage.OpenSqlite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ids, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}

	for _, id := range ids {
		snapshot, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		user, _ := snapshot.Values.String(tools.UserIDKey)
		if user != "" {
			fmt.Fprintf(out, "  %s (%d turns, user %s)\n", id, len(snapshot.Turns), user)
		} else {
			fmt.Fprintf(out, "  %s (%d turns)\n", id, len(snapshot.Turns))
		}
	}
	return nil
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
