package crm_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/intent"
	"github.com/teemow/crmupdater/internal/pipeline"
	"github.com/teemow/crmupdater/internal/server"
	"github.com/teemow/crmupdater/internal/tools/batch"
	"github.com/teemow/crmupdater/internal/tools/common"
)

// Tool names.
const (
	ToolParseEmail      = "crm_parse_email"
	ToolUploadCompanies = "crm_upload_companies"
	ToolProcessLatest   = "crm_process_latest"
)

// RegisterCRMTools registers the CRM tools with the MCP server.
// With readOnly set only crm_parse_email is registered.
func RegisterCRMTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if s == nil || sc == nil {
		return fmt.Errorf("mcp server and server context are required")
	}

	parseTool := mcp.NewTool(ToolParseEmail,
		mcp.WithDescription("Parse an email body for an 'upload to affinity' instruction and return the companies and note it names"),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain text email body"),
		),
	)
	s.AddTool(parseTool, common.InstrumentedToolHandler(ToolParseEmail, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleParseEmail(ctx, request)
		}))

	if readOnly {
		return nil
	}

	uploadTool := mcp.NewTool(ToolUploadCompanies,
		mcp.WithDescription("Upsert companies into the CRM with the configured mode (direct Affinity API or intake email relay)"),
		mcp.WithString("companies",
			mcp.Required(),
			mcp.Description("Company name, comma separated names, or array of names to upsert"),
		),
		mcp.WithString("note",
			mcp.Description("Note attached to the first company"),
		),
		mcp.WithString("links",
			mcp.Description("Attachment link or array of links appended to every company's note"),
		),
	)
	s.AddTool(uploadTool, common.InstrumentedToolHandler(ToolUploadCompanies, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUploadCompanies(ctx, request, sc)
		}))

	processTool := mcp.NewTool(ToolProcessLatest,
		mcp.WithDescription("Fetch the latest inbox message and run the full update pipeline on it, as a push notification would"),
	)
	s.AddTool(processTool, common.InstrumentedToolHandler(ToolProcessLatest, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleProcessLatest(ctx, request, sc)
		}))

	return nil
}

func handleParseEmail(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := common.RequiredStringArg(request.GetArguments(), "body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in, err := intent.Parse(body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("No upload instruction found: %v", err)), nil
	}
	return jsonResult(in)
}

func handleUploadCompanies(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	companies, err := common.StringListArg(args, "companies")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(companies) == 0 {
		return mcp.NewToolResultError("companies is required"), nil
	}
	links, err := common.StringListArg(args, "links")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var notes []string
	if note := common.StringArg(args, "note"); note != "" {
		notes = []string{note}
	}

	upserter := sc.Pipeline().Upserter()
	results, err := upserter.Upsert(ctx, crm.NewBatch(companies, notes, links))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Upload failed: %v", err)), nil
	}

	return mcp.NewToolResultText(batch.Summarize(upserter.Mode(), companies, results).Format()), nil
}

func handleProcessLatest(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	out, err := sc.Pipeline().Run(ctx, pipeline.Trigger{Source: pipeline.SourceTool})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Processing failed (request %s): %v", out.RequestID, err)), nil
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
