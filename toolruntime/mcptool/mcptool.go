// Package mcptool bridges MCP (Model Context Protocol) servers into the
// Tool Runtime: each remote tool the server advertises becomes one
// toolruntime.Handler, connecting lazily on first use.
//
// Follows pkg/tool/mcptoolset/mcptoolset.go closely (stdio transport via
// mark3labs/mcp-go's client package, lazy connect, ListTools-to-local-
// handler conversion), adapted from its Toolset-returns-[]Tool shape into
// one Handler per remote tool name, since the Runtime here registers
// individual handlers rather than toolsets.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Config configures a stdio-transport MCP connection. HTTP/SSE transports
// are out of scope for this bridge; an httpclient-based path is not
// reproduced here since this module has no equivalent retry client.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Bridge lazily connects to one MCP server and exposes its tools as
// toolruntime.Handler values.
type Bridge struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
	remote    map[string]mcp.Tool
}

// New constructs a Bridge; the connection itself is deferred to first use.
func New(cfg Config) *Bridge {
	return &Bridge{cfg: cfg, remote: make(map[string]mcp.Tool)}
}

func (b *Bridge) connect(ctx context.Context) error {
	if b.connected {
		return nil
	}

	c, err := client.NewStdioMCPClient(b.cfg.Command, envSlice(b.cfg.Env), b.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcptool: create client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcptool: start client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "arbiterloop-engine", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("mcptool: initialize: %w", err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("mcptool: list tools: %w", err)
	}

	for _, t := range listResp.Tools {
		b.remote[b.qualify(t.Name)] = t
	}

	b.client = c
	b.connected = true
	return nil
}

func (b *Bridge) qualify(name string) string {
	return b.cfg.Name + ":" + name
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Handlers connects (if needed) and returns one toolruntime.Handler per
// tool the MCP server advertises.
func (b *Bridge) Handlers(ctx context.Context) ([]*RemoteTool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connect(ctx); err != nil {
		return nil, err
	}

	handlers := make([]*RemoteTool, 0, len(b.remote))
	for localName, t := range b.remote {
		handlers = append(handlers, &RemoteTool{bridge: b, localName: localName, remoteName: t.Name, tool: t})
	}
	return handlers, nil
}

// Close releases the underlying connection, if one was established.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// RemoteTool adapts one MCP server tool into toolruntime.Handler. MCP tools
// are never flagged RequiresApproval at the bridge level. The runtime
// consults the permission evaluator only for handlers that report
// RequiresApproval, so a RemoteTool runs without a permission check; an
// evaluator entry for its qualified name has no effect.
type RemoteTool struct {
	bridge     *Bridge
	localName  string
	remoteName string
	tool       mcp.Tool
}

func (r *RemoteTool) Name() string          { return r.localName }
func (r *RemoteTool) Description() string   { return r.tool.Description }
func (r *RemoteTool) RequiresApproval() bool { return false }

func (r *RemoteTool) Schema() map[string]any {
	raw, err := json.Marshal(r.tool.InputSchema)
	if err != nil {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return schema
}

func (r *RemoteTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("mcptool %s: invalid input: %w", r.localName, err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = r.remoteName
	req.Params.Arguments = args

	r.bridge.mu.Lock()
	c := r.bridge.client
	r.bridge.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("mcptool %s: not connected", r.localName)
	}

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcptool %s: call: %w", r.localName, err)
	}
	if resp.IsError {
		return nil, fmt.Errorf("mcptool %s: remote error: %v", r.localName, resp.Content)
	}
	return resp.Content, nil
}
