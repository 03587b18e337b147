// Package mcptest runs in-process MCP tool providers for tests.
package mcptest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"
)

// Provider is a running MCP server over streamable HTTP.
type Provider struct {
	Server *httptest.Server

	lock  sync.Mutex
	calls map[string]int
	args  map[string][]map[string]any
}

// Tool is a tool with its handler.
type Tool struct {
	Tool    mcp.Tool
	Handler mcpserver.ToolHandlerFunc
}

// NewProvider starts the provider, it is closed with the test cleanup.
func NewProvider(t testing.TB, name string, list ...Tool) *Provider {
	p := &Provider{
		calls: make(map[string]int),
		args:  make(map[string][]map[string]any),
	}

	srv := mcpserver.NewMCPServer(name, "1.0.0")
	for _, tl := range list {
		toolName := tl.Tool.Name
		handler := tl.Handler
		srv.AddTool(tl.Tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			p.record(toolName, req.GetArguments())
			return handler(ctx, req)
		})
	}

	p.Server = httptest.NewServer(mcpserver.NewStreamableHTTPServer(srv))
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the MCP endpoint.
func (p *Provider) URL() string {
	return p.Server.URL + "/mcp"
}

// BaseURL returns the address without path.
func (p *Provider) BaseURL() string {
	return p.Server.URL
}

// Calls returns the number of calls of the tool.
func (p *Provider) Calls(name string) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.calls[name]
}

// LastArgs returns the arguments of the last call of the tool.
func (p *Provider) LastArgs(name string) map[string]any {
	p.lock.Lock()
	defer p.lock.Unlock()
	list := p.args[name]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (p *Provider) record(name string, args map[string]any) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls[name]++
	p.args[name] = append(p.args[name], args)
}

// Tours returned by the booking provider.
var Tours = []map[string]any{
	{"code": "GOA-3N", "name": "Goa Beach Escape", "price": 15000, "nights": 3, "destination": "Goa"},
	{"code": "KER-5N", "name": "Kerala Backwaters", "price": 32000, "nights": 5, "destination": "Kerala"},
	{"code": "LEH-6N", "name": "Leh Ladakh Adventure", "price": 45000, "nights": 6, "destination": "Leh"},
}

// Customers known to the booking provider, by phone.
var Customers = map[string]map[string]any{
	"+919876543210": {"id": 1, "name": "Asha Rao", "phone": "+919876543210", "email": "asha@example.com"},
}

// Booking starts the provider with the booking tools.
func Booking(t testing.TB) *Provider {
	return NewProvider(t, "booking",
		Tool{
			Tool: mcp.NewTool("searchTours",
				mcp.WithDescription("Search available tours by destination and budget"),
				mcp.WithString("destination", mcp.Description("Destination name")),
				mcp.WithNumber("budget", mcp.Description("Maximum price")),
			),
			Handler: searchTours,
		},
		Tool{
			Tool: mcp.NewTool("bookTour",
				mcp.WithDescription("Book a tour for a customer"),
				mcp.WithNumber("customer_id", mcp.Required()),
				mcp.WithString("tour_code", mcp.Required()),
				mcp.WithString("start_date", mcp.Required()),
				mcp.WithString("end_date", mcp.Required()),
			),
			Handler: bookTour,
		},
		Tool{
			Tool: mcp.NewTool("getCustomerContext",
				mcp.WithDescription("Get customer context by phone number"),
				mcp.WithString("phone", mcp.Required()),
			),
			Handler: getCustomerContext,
		},
		Tool{
			Tool: mcp.NewTool("ping",
				mcp.WithDescription("Returns plain text"),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("pong"), nil
			},
		},
	)
}

// Payment starts the provider with the payment tool.
func Payment(t testing.TB) *Provider {
	return NewProvider(t, "payment",
		Tool{
			Tool: mcp.NewTool("processPayment",
				mcp.WithDescription("Process a payment, requires explicit consent"),
				mcp.WithNumber("customer_id", mcp.Required()),
				mcp.WithNumber("amount", mcp.Required()),
				mcp.WithString("currency"),
				mcp.WithString("method"),
				mcp.WithBoolean("consent", mcp.Required()),
			),
			Handler: processPayment,
		},
	)
}

func searchTours(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dest := strings.ToLower(cast.ToString(args["destination"]))
	budget := cast.ToInt(args["budget"])

	res := []map[string]any{}
	for _, tour := range Tours {
		if dest != "" && !strings.Contains(strings.ToLower(tour["destination"].(string)), dest) {
			continue
		}
		if budget > 0 && tour["price"].(int) > budget {
			continue
		}
		res = append(res, tour)
	}
	return jsonResult(map[string]any{"tours": res})
}

func bookTour(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	code := cast.ToString(args["tour_code"])
	for _, tour := range Tours {
		if tour["code"] == code {
			return jsonResult(map[string]any{
				"success": true,
				"booking": map[string]any{
					"id":          101,
					"customer_id": cast.ToInt(args["customer_id"]),
					"tour_code":   code,
					"start_date":  cast.ToString(args["start_date"]),
					"end_date":    cast.ToString(args["end_date"]),
					"total_price": tour["price"],
					"status":      "CONFIRMED",
				},
			})
		}
	}
	return mcp.NewToolResultError("TOUR_NOT_FOUND"), nil
}

func getCustomerContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone := cast.ToString(req.GetArguments()["phone"])
	if c, ok := Customers[phone]; ok {
		return jsonResult(map[string]any{"found": true, "customer": c})
	}
	return jsonResult(map[string]any{"found": false})
}

func processPayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if !cast.ToBool(args["consent"]) {
		return jsonResult(map[string]any{"success": false, "error": "CONSENT_REQUIRED"})
	}
	return jsonResult(map[string]any{
		"success": true,
		"receipt": map[string]any{
			"customer_id": cast.ToInt(args["customer_id"]),
			"amount":      cast.ToInt(args["amount"]),
			"currency":    cast.ToString(args["currency"]),
			"status":      "PAID",
		},
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(js)), nil
}
