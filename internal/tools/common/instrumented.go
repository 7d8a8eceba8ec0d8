package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
	"github.com/teemow/crmupdater/internal/server"
)

// ToolHandler is the signature of an MCP tool handler. It is an alias so a
// wrapped handler can be passed straight to MCPServer.AddTool.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and an
// audit record. A result with IsError set counts as a failure.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewInvocation(instrumentation.InvocationTool, toolName).
			WithSpanContext(ctx)

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
			invocation.Complete(err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			invocation.Complete(errToolResult)
		default:
			instrumentation.SetSpanSuccess(span)
			invocation.Complete(nil)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, duration)
		sc.AuditLogger().Log(invocation)
		sc.Logger().Debug("tool invoked", logging.Tool(toolName), logging.Status(status), "duration", duration)

		return result, err
	}
}
