package api

import (
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/theranorm/theranorm/pkg/kit"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/registry"
)

// NewMCPServer builds an MCP server exposing the normalization tools.
func NewMCPServer(name, version string, eng *query.Engine, reg *registry.Registry) *server.MCPServer {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	registerNormalize(srv, eng)
	registerSearch(srv, eng)
	registerListSources(srv, reg)
	return srv
}

// MountMCP attaches the MCP streamable-HTTP transport to a mux at /mcp.
func MountMCP(mux *http.ServeMux, srv *server.MCPServer) {
	httpServer := server.NewStreamableHTTPServer(srv)
	mux.Handle("/mcp", httpServer)
	mux.Handle("/mcp/", httpServer)
}

func registerNormalize(srv *server.MCPServer, eng *query.Engine) {
	tool := mcp.NewTool("normalize_therapy",
		mcp.WithDescription("Normalize a drug or therapy name to its canonical merged concept across RxNorm, NCIt, HemOnc, DrugBank and other sources."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Drug name, synonym, trade name, or concept ID (e.g. rxcui:10582)")),
		mcp.WithString("sources", mcp.Description("Comma-separated source restriction (e.g. RxNorm,NCIt)")),
		mcp.WithBoolean("no_infer", mcp.Description("Disable namespace inference for bare identifiers like CHEMBL25")),
	)

	kit.RegisterMCPTool(srv, tool, normalizeEndpoint(eng), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		q, _ := req.GetArguments()["query"].(string)
		opts, err := mcpOpts(req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &normalizeReq{Query: q, Opts: opts}}, nil
	})
}

func registerSearch(srv *server.MCPServer, eng *query.Engine) {
	tool := mcp.NewTool("search_therapy",
		mcp.WithDescription("Search each source independently for a drug or therapy name, returning the raw per-source records without merging."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Drug name, synonym, trade name, or concept ID")),
		mcp.WithString("sources", mcp.Description("Comma-separated source restriction")),
		mcp.WithBoolean("no_infer", mcp.Description("Disable namespace inference for bare identifiers")),
	)

	kit.RegisterMCPTool(srv, tool, searchEndpoint(eng), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		q, _ := req.GetArguments()["query"].(string)
		opts, err := mcpOpts(req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &searchReq{Query: q, Opts: opts}}, nil
	})
}

func registerListSources(srv *server.MCPServer, reg *registry.Registry) {
	tool := mcp.NewTool("list_sources",
		mcp.WithDescription("List ingested reference sources with version and record count."),
	)

	kit.RegisterMCPTool(srv, tool, listSourcesEndpoint(reg), func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})
}

func mcpOpts(req mcp.CallToolRequest) (*query.Options, error) {
	args := req.GetArguments()
	opts := &query.Options{}
	if v, _ := args["sources"].(string); v != "" {
		sources, err := parseSources(strings.Split(v, ","))
		if err != nil {
			return nil, err
		}
		opts.Sources = sources
	}
	if v, _ := args["no_infer"].(bool); v {
		opts.NoInfer = true
	}
	return opts, nil
}
