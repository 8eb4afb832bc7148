// Package plugintool loads externally-registered tools as subprocesses via
// hashicorp/go-plugin, exposing each as a toolruntime.Handler — the
// "user handlers may be added through a public register_tool API" path.
//
// Follows the same plugin.ClientConfig/HandshakeConfig/Dispense/Kill
// lifecycle as pkg/plugins/grpc/loader.go, but over net/rpc rather than
// gRPC, since this module has no generated protobuf stubs to dispense a
// gRPC client from — net/rpc is go-plugin's other first-class transport
// and needs no code generation.
package plugintool

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake mirrors pkg/plugins/grpc/loader.go's fixed protocol/cookie
// pair, renamed to this module's own namespace so a stray plugin binary
// built for a different host cannot be mistakenly dispensed.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ARBITERLOOP_TOOL_PLUGIN",
	MagicCookieValue: "arbiterloop_tool_plugin_v1",
}

func init() {
	gob.Register(map[string]any{})
}

// ToolPlugin describes what an external tool process must expose. The
// plugin process implements Server, the host implements nothing (it only
// calls through the RPC client stub the go-plugin handshake returns).
type ToolPlugin interface {
	Describe() (Description, error)
	Invoke(input json.RawMessage) (any, error)
}

// Description is the metadata a plugin reports about itself once, at load time.
type Description struct {
	Name              string
	Description       string
	RequiresApproval  bool
	SchemaJSON        string // a JSON-encoded JSON-Schema object, or "" for no params
}

// rpcServer wraps a concrete ToolPlugin for serving over net/rpc.
type rpcServer struct{ impl ToolPlugin }

func (s *rpcServer) Describe(_ struct{}, resp *Description) error {
	d, err := s.impl.Describe()
	if err != nil {
		return err
	}
	*resp = d
	return nil
}

func (s *rpcServer) Invoke(input []byte, resp *[]byte) error {
	result, err := s.impl.Invoke(input)
	if err != nil {
		return err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

// rpcClient is the host-side stub dispensed by go-plugin.
type rpcClient struct{ client *rpc.Client }

func (c *rpcClient) Describe() (Description, error) {
	var resp Description
	err := c.client.Call("Plugin.Describe", struct{}{}, &resp)
	return resp, err
}

func (c *rpcClient) Invoke(input []byte) ([]byte, error) {
	var resp []byte
	err := c.client.Call("Plugin.Invoke", input, &resp)
	return resp, err
}

// Plugin is the go-plugin.Plugin implementation registered on both sides of
// the handshake.
type Plugin struct {
	Impl ToolPlugin // set on the plugin-process side only
}

func (p *Plugin) Server(*goplugin.MuxBroker) (any, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *Plugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &rpcClient{client: c}, nil
}

const pluginMapKey = "tool"

// Load starts the subprocess at path and returns a live Handler bridging it
// into the Tool Runtime. Close must be called to terminate the subprocess.
func Load(path string, args ...string) (*Handler, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         map[string]goplugin.Plugin{pluginMapKey: &Plugin{}},
		Cmd:             exec.Command(path, args...),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "arbiterloop-tool-plugin",
			Level: hclog.Warn,
		}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugintool: connect: %w", err)
	}

	raw, err := rpcClient.Dispense(pluginMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugintool: dispense: %w", err)
	}

	stub, ok := raw.(*rpcClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugintool: unexpected stub type %T", raw)
	}

	desc, err := stub.Describe()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugintool: describe: %w", err)
	}

	return &Handler{desc: desc, stub: stub, process: client}, nil
}

// Handler adapts one loaded plugin into toolruntime.Handler.
type Handler struct {
	desc    Description
	stub    *rpcClient
	process *goplugin.Client
}

func (h *Handler) Name() string          { return h.desc.Name }
func (h *Handler) Description() string   { return h.desc.Description }
func (h *Handler) RequiresApproval() bool { return h.desc.RequiresApproval }

func (h *Handler) Schema() map[string]any {
	if h.desc.SchemaJSON == "" {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(h.desc.SchemaJSON), &schema); err != nil {
		return nil
	}
	return schema
}

func (h *Handler) Execute(_ context.Context, input json.RawMessage) (any, error) {
	raw, err := h.stub.Invoke(input)
	if err != nil {
		return nil, fmt.Errorf("plugintool %s: %w", h.desc.Name, err)
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("plugintool %s: decode result: %w", h.desc.Name, err)
	}
	return result, nil
}

// Close terminates the plugin subprocess.
func (h *Handler) Close() {
	h.process.Kill()
}
