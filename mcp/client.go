// Package mcp connects to Model Context Protocol servers and exposes their
// tools through the tool registry.
//
// Servers are child processes speaking newline-delimited JSON-RPC over
// stdin/stdout.
//
// Information Hiding:
// - Process management hidden
// - JSON-RPC framing and request ID tracking hidden
// - Response demultiplexing hidden

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

const protocolVersion = "2024-11-05"

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("mcp client closed")

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      *int64      `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// ToolInfo describes a tool available on the server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CallResult is the outcome of tools/call.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one piece of a tool result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Client is a connection to one server.
// Requests may be issued concurrently; responses are matched by id.
type Client struct {
	name    string
	timeout time.Duration
	logger  *slog.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser
	stdout  io.Reader
	stop    func()

	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *rpcResponse

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewClient starts the server process and performs the initialize handshake.
func NewClient(ctx context.Context, name string, cfg ServerConfig, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", name, err)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server %s: %w", name, err)
	}

	stop := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	client := newClient(name, cfg.timeout(), stdout, stdin, stop, logger)

	if err := client.initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP server %s: %w", name, err)
	}
	return client, nil
}

// newClient wires a client to an already running transport.
func newClient(name string, timeout time.Duration, stdout io.Reader, stdin io.WriteCloser, stop func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		name:    name,
		timeout: timeout,
		logger:  logger.With("mcp_server", name),
		stdin:   stdin,
		stdout:  stdout,
		stop:    stop,
		pending: make(map[int64]chan *rpcResponse),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "toolthread",
			"version": "0.1.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized")
}

// ListTools returns all tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var list struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("failed to parse tools list: %w", err)
	}
	return list.Tools, nil
}

// CallTool calls a tool on the server with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallResult, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}
	params := map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	}

	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	id := c.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%s: request timeout after %v", method, c.timeout)
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) notify(method string) error {
	return c.write(rpcRequest{JSONRPC: "2.0", Method: method})
}

func (c *Client) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// readLoop routes responses to their callers until stdout closes.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
			// Notifications and log lines are not answers to anything.
			c.logger.Debug("ignoring server message", "message", string(line))
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		c.pendingMu.Unlock()
		if ok {
			select {
			case ch <- &resp:
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("mcp stdout read failed", "error", err)
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.stdin.Close()
		if c.stop != nil {
			c.stop()
		}
	})
}

// Close stops the server process and waits for the reader to exit.
func (c *Client) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}
