package session

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPDialer opens MCP sessions over streamable HTTP.
type MCPDialer struct {
	ClientName    string
	ClientVersion string
}

// Dial starts the transport and runs the initialize handshake.
func (d MCPDialer) Dial(ctx context.Context, address string) (Client, error) {
	cli, err := mcpclient.NewStreamableHttpClient(address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create MCP client")
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, errors.Wrap(err, "failed to start MCP client")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    values.StringsCoalesce(d.ClientName, "mcpagent"),
		Version: values.StringsCoalesce(d.ClientVersion, "1.0.0"),
	}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		_ = cli.Close()
		return nil, errors.Wrap(err, "failed to initialize MCP client")
	}
	return &mcpClient{cli: cli}, nil
}

type mcpClient struct {
	cli *mcpclient.Client
}

func (c *mcpClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := c.cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tools")
	}
	list := make([]ToolInfo, 0, len(res.Tools))
	for _, tl := range res.Tools {
		list = append(list, ToolInfo{
			Name:        tl.Name,
			Title:       tl.Annotations.Title,
			Description: tl.Description,
			Properties:  tl.InputSchema.Properties,
			Required:    tl.InputSchema.Required,
		})
	}
	return list, nil
}

func (c *mcpClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.cli.CallTool(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call tool %s", name)
	}

	var texts []string
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			texts = append(texts, tc.Text)
		case *mcp.TextContent:
			texts = append(texts, tc.Text)
		}
	}
	return &CallResult{
		Text:    strings.Join(texts, "\n"),
		IsError: res.IsError,
	}, nil
}

func (c *mcpClient) Close() error {
	return c.cli.Close()
}
