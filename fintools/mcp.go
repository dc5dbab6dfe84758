package fintools

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/fintalk/fintalk/agentloop"
)

// MCPServerConfig describes one external tool server started as a
// subprocess speaking MCP over stdio.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
}

// MCPClient owns the connection to one MCP server and tracks the tool
// names it contributed to the registry.
type MCPClient struct {
	name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []string
}

// AttachMCP starts each configured MCP server, discovers its tools and
// registers them under server-prefixed names ("<server>_<tool>") so
// tools from different servers cannot collide. A server that fails to
// start is logged and skipped; the rest still attach.
func AttachMCP(ctx context.Context, registry *agentloop.Registry, servers []MCPServerConfig, logger zerolog.Logger) []*MCPClient {
	clients := make([]*MCPClient, 0, len(servers))
	for _, srv := range servers {
		client, err := attachServer(ctx, registry, srv)
		if err != nil {
			logger.Warn().Err(err).Str("server", srv.Name).Msg("skipping MCP server")
			continue
		}
		logger.Info().Str("server", srv.Name).Int("tools", len(client.tools)).Msg("attached MCP server")
		clients = append(clients, client)
	}
	return clients
}

func attachServer(ctx context.Context, registry *agentloop.Registry, srv MCPServerConfig) (*MCPClient, error) {
	if srv.Name == "" || srv.Command == "" {
		return nil, fmt.Errorf("mcp server needs a name and a command")
	}

	cmd := exec.Command(srv.Command, srv.Args...)
	cmd.Stderr = os.Stderr
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "fintalk", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("connecting to MCP server %q: %w", srv.Name, err)
	}

	client := &MCPClient{name: srv.Name, cmd: cmd, conn: conn}

	params := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, params)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("listing tools from MCP server %q: %w", srv.Name, err)
		}
		for _, t := range toolList.Tools {
			name := MCPToolName(srv.Name, t.Name)
			registry.Register(client.tool(name, t.Name, t.Description))
			client.tools = append(client.tools, name)
		}
		if toolList.NextCursor == "" {
			break
		}
		params.Cursor = toolList.NextCursor
	}
	return client, nil
}

// MCPToolName is the registry name for a server's tool. Colons break
// some providers' tool-name validation, so the parts join with an
// underscore.
func MCPToolName(server, tool string) string {
	return server + "_" + tool
}

// tool wraps one remote tool as a registry entry. The server's input
// schema is not mirrored locally; argument validation is left to the
// server itself.
func (c *MCPClient) tool(name, remote, description string) agentloop.Tool {
	return agentloop.Tool{
		Name:        name,
		Description: description,
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			result, err := c.conn.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      remote,
				Arguments: args,
			})
			if err != nil {
				return "", fmt.Errorf("calling MCP tool %q: %w", name, err)
			}
			var out string
			for _, content := range result.Content {
				if text, ok := content.(*mcpsdk.TextContent); ok {
					out += text.Text
				}
			}
			return out, nil
		},
	}
}

// Name returns the server name from the configuration.
func (c *MCPClient) Name() string { return c.name }

// Tools returns the registry names contributed by this server.
func (c *MCPClient) Tools() []string {
	names := make([]string, len(c.tools))
	copy(names, c.tools)
	return names
}

// Detach removes this server's tools from the registry.
func (c *MCPClient) Detach(registry *agentloop.Registry) {
	for _, name := range c.tools {
		registry.Unregister(name)
	}
}

// Close shuts down the connection and terminates the server subprocess.
func (c *MCPClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}
