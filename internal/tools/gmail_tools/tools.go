package gmail_tools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/crmupdater/internal/server"
	"github.com/teemow/crmupdater/internal/tools/common"
)

// ToolRefreshWatch re-registers the mailbox watch.
const ToolRefreshWatch = "gmail_refresh_watch"

// RegisterGmailTools registers the Gmail tools with the MCP server.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil || sc == nil {
		return fmt.Errorf("mcp server and server context are required")
	}

	refreshWatchTool := mcp.NewTool(ToolRefreshWatch,
		mcp.WithDescription("Re-register the Gmail push watch on the configured Pub/Sub topic. Gmail expires watches after seven days."),
	)
	s.AddTool(refreshWatchTool, common.InstrumentedToolHandler(ToolRefreshWatch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRefreshWatch(ctx, request, sc)
		}))

	return nil
}

func handleRefreshWatch(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.RefreshWatch(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to refresh watch: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Watch refreshed.\nhistory_id: %s\nexpiration: %s",
		strconv.FormatUint(res.HistoryID, 10), res.Expiration.UTC().Format(time.RFC3339))), nil
}
