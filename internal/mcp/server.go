// Package mcp exposes workflow resolution as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"comfydeps/internal/services"
	"comfydeps/pkg/models"
)

// Resolver is the part of services.ResolutionService the tools use.
type Resolver interface {
	Resolve(ctx context.Context, data []byte, opts services.ResolveOptions) (*models.Resolution, error)
	GetResolution(ctx context.Context, id string) (*models.Resolution, error)
}

type Server struct {
	mcpServer      *server.MCPServer
	resolver       Resolver
	pullLatestHash bool
}

func NewServer(resolver Resolver, pullLatestHash bool) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"comfydeps",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		resolver:       resolver,
		pullLatestHash: pullLatestHash,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"resolve_workflow",
			mcp.WithDescription("Resolve the model files, input files and custom-node packages a workflow depends on"),
			mcp.WithString("workflow", mcp.Required(), mcp.Description("The workflow JSON, in graph or execution shape")),
			mcp.WithString("snapshot", mcp.Description("Optional snapshot JSON pinning package revisions")),
			mcp.WithBoolean("pull_latest_hash", mcp.Description("Look up the latest commit for packages the snapshot does not pin")),
			mcp.WithBoolean("include_node_list", mcp.Description("List the workflow nodes attributed to each package")),
		),
		s.handleResolveWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_resolution",
			mcp.WithDescription("Fetch a stored resolution by ID"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the resolution")),
		),
		s.handleGetResolution,
	)
}

func (s *Server) handleResolveWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	wf, ok := args["workflow"].(string)
	if !ok || wf == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow"), nil
	}

	opts := services.ResolveOptions{PullLatestHashIfMissing: s.pullLatestHash}
	if raw, ok := args["snapshot"].(string); ok && raw != "" {
		var snapshot models.Snapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid snapshot: %v", err)), nil
		}
		opts.Snapshot = &snapshot
	}
	if v, ok := args["pull_latest_hash"].(bool); ok {
		opts.PullLatestHashIfMissing = v
	}
	if v, ok := args["include_node_list"].(bool); ok {
		opts.IncludeNodeList = v
	}

	res, err := s.resolver.Resolve(ctx, []byte(wf), opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve workflow: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetResolution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	res, err := s.resolver.GetResolution(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get resolution: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers serves the MCP SSE transport under /mcp.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
