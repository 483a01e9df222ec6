package capability

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCP bridges one tool of an MCP server into a capability kind, so an
// external server can replace a built-in worker domain. The server is
// started lazily on first use.
type MCP struct {
	kind                 taskory.Capability
	toolName             string
	requiresConfirmation bool

	// For local MCP server
	path    string
	args    []string
	envVars []string

	// For remote MCP server
	baseURL string
	headers map[string]string

	client     *client.Client
	initResult *mcp.InitializeResult

	initMutex sync.Mutex
}

// MCPOption is the type for MCP bridge options.
type MCPOption func(*MCP)

// WithMCPEnvVars appends environment variables for a stdio MCP server.
func WithMCPEnvVars(envVars []string) MCPOption {
	return func(m *MCP) {
		m.envVars = append(m.envVars, envVars...)
	}
}

// WithMCPHeaders sets the headers for a remote MCP server.
func WithMCPHeaders(headers map[string]string) MCPOption {
	return func(m *MCP) {
		m.headers = headers
	}
}

// WithMCPConfirmation marks the bridged kind as confirmation gated.
func WithMCPConfirmation(required bool) MCPOption {
	return func(m *MCP) {
		m.requiresConfirmation = required
	}
}

// NewMCPStdio bridges a tool of a local MCP executable served over
// stdio into the given capability kind.
func NewMCPStdio(kind taskory.Capability, toolName, path string, args []string, options ...MCPOption) *MCP {
	m := &MCP{
		kind:     kind,
		toolName: toolName,
		path:     path,
		args:     args,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// NewMCPSSE bridges a tool of a remote MCP server reached via HTTP SSE
// into the given capability kind.
func NewMCPSSE(kind taskory.Capability, toolName, baseURL string, options ...MCPOption) *MCP {
	m := &MCP{
		kind:     kind,
		toolName: toolName,
		baseURL:  baseURL,
		headers:  map[string]string{},
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *MCP) Specs(ctx context.Context) ([]taskory.CapabilitySpec, error) {
	tool, err := m.findTool(ctx)
	if err != nil {
		return nil, err
	}

	return []taskory.CapabilitySpec{
		{
			Name:                 tool.Name,
			Kind:                 m.kind,
			Description:          tool.Description,
			RequiresConfirmation: m.requiresConfirmation,
			Parameters:           inputSchemaToParameters(tool.InputSchema),
		},
	}, nil
}

func (m *MCP) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if err := m.start(ctx); err != nil {
		return nil, err
	}

	taskory.LoggerFromContext(ctx).Debug("call MCP tool", "name", m.toolName, "args", args)

	req := mcp.CallToolRequest{}
	req.Params.Name = m.toolName
	req.Params.Arguments = args
	resp, err := m.client.CallTool(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool", goerr.V("tool", m.toolName))
	}

	return mcpContentToMap(resp.Content), nil
}

// Close shuts down the underlying MCP client.
func (m *MCP) Close() error {
	m.initMutex.Lock()
	defer m.initMutex.Unlock()

	if m.client == nil {
		return nil
	}
	if err := m.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close MCP client")
	}
	m.client = nil
	m.initResult = nil
	return nil
}

func (m *MCP) start(ctx context.Context) error {
	m.initMutex.Lock()
	defer m.initMutex.Unlock()

	if m.initResult != nil {
		return nil
	}

	var tp transport.Interface
	if m.path != "" {
		tp = transport.NewStdio(m.path, m.envVars, m.args...)
	}
	if m.baseURL != "" {
		sse, err := transport.NewSSE(m.baseURL, transport.WithHeaders(m.headers))
		if err != nil {
			return goerr.Wrap(err, "failed to create SSE transport")
		}
		tp = sse
	}
	if tp == nil {
		return goerr.New("no transport")
	}

	m.client = client.NewClient(tp)

	if err := m.client.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start MCP client")
	}

	var initRequest mcp.InitializeRequest
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "taskory",
		Version: "0.0.1",
	}

	resp, err := m.client.Initialize(ctx, initRequest)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize MCP client")
	}
	m.initResult = resp

	return nil
}

func (m *MCP) findTool(ctx context.Context) (*mcp.Tool, error) {
	if err := m.start(ctx); err != nil {
		return nil, err
	}

	resp, err := m.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tools")
	}

	for i := range resp.Tools {
		if resp.Tools[i].Name == m.toolName {
			return &resp.Tools[i], nil
		}
	}
	return nil, goerr.Wrap(taskory.ErrCapabilityNotFound, "MCP server does not serve the tool",
		goerr.V("tool", m.toolName))
}

// inputSchemaToParameters flattens a tool's input schema into the
// capability parameter shape. Nested structure beyond type and
// description is not carried over.
func inputSchemaToParameters(schema mcp.ToolInputSchema) map[string]*taskory.Parameter {
	if len(schema.Properties) == 0 {
		return nil
	}

	required := map[string]bool{}
	for _, name := range schema.Required {
		required[name] = true
	}

	parameters := make(map[string]*taskory.Parameter, len(schema.Properties))
	for name, property := range schema.Properties {
		prop, ok := property.(map[string]any)
		if !ok {
			continue
		}
		parameters[name] = &taskory.Parameter{
			Type:        taskory.ParameterType(stringOrEmpty(prop["type"])),
			Description: stringOrEmpty(prop["description"]),
			Required:    required[name],
		}
	}
	return parameters
}

func stringOrEmpty(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func mcpContentToMap(contents []mcp.Content) map[string]any {
	for _, c := range contents {
		txt, ok := c.(mcp.TextContent)
		if !ok {
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(txt.Text), &v); err == nil {
			if mapData, ok := v.(map[string]any); ok {
				return mapData
			}
			return map[string]any{"content": txt.Text}
		}
		return map[string]any{"content": txt.Text}
	}

	return map[string]any{}
}
