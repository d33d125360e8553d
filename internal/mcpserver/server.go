// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/service"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_checklists",
		mcp.WithDescription("List every routine checklist with its steps, in display order."),
	), s.listChecklists)

	s.mcp.AddTool(mcp.NewTool("start_step",
		mcp.WithDescription("Open a timed log entry for a checklist step."),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Id of the step to start")),
	), s.startStep)

	s.mcp.AddTool(mcp.NewTool("finish_step",
		mcp.WithDescription("Close the open log entry for a step and mark the step done."),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Id of the step to finish")),
	), s.finishStep)

	s.mcp.AddTool(mcp.NewTool("get_runs",
		mcp.WithDescription("Reconstruct completed usage sessions (runs) inside a time window. "+
			"Times are ms since the Unix epoch; omit both for the last 24 hours."),
		mcp.WithString("checklist_id", mcp.Description("Restrict to one checklist")),
		mcp.WithString("from", mcp.Description("Window start (ms epoch)")),
		mcp.WithString("to", mcp.Description("Window end (ms epoch)")),
	), s.getRuns)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listChecklists(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type detail struct {
		ID    string   `json:"id"`
		Title string   `json:"title"`
		Steps []string `json:"steps"`
	}
	var out []detail
	for _, c := range s.svc.Checklists(ctx) {
		d := detail{ID: c.ID, Title: c.Title}
		_, steps, err := s.svc.Checklist(ctx, c.ID)
		if err == nil {
			for _, st := range steps {
				d.Steps = append(d.Steps, fmt.Sprintf("%s (%s)", st.Title, st.ID))
			}
		}
		out = append(out, d)
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) startStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stepID, err := req.RequireString("step_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.StartStep(ctx, stepID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("started: entry %s at %d", e.ID, e.StartAt)), nil
}

func (s *Server) finishStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stepID, err := req.RequireString("step_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.FinishStep(ctx, stepID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("finished: entry %s, %d ms", e.ID, e.ActionDuration())), nil
}

func (s *Server) getRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().UnixMilli()
	from := now - 24*time.Hour.Milliseconds()
	to := now

	if v := req.GetString("from", ""); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return mcp.NewToolResultError("from must be an integer"), nil
		}
		from = parsed
	}
	if v := req.GetString("to", ""); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return mcp.NewToolResultError("to must be an integer"), nil
		}
		to = parsed
	}

	runs, err := s.svc.Runs(ctx, req.GetString("checklist_id", ""), from, to, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
