package classify_tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

// instrumented wraps a tool handler with a span and one log line per call.
//
// Usage:
//
//	s.AddTool(myTool, instrumented("my_tool", logger, handler))
func instrumented(toolName string, logger *slog.Logger, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartSpan(ctx, "mcp.tool."+toolName,
			attribute.String("mcp.tool", toolName))
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)

		status := logging.StatusSuccess
		switch {
		case err != nil:
			status = logging.StatusError
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = logging.StatusError
		default:
			instrumentation.SetSpanSuccess(span)
		}

		logger.Debug("tool invoked",
			slog.String("tool", toolName),
			logging.Status(status),
			slog.Duration("duration", time.Since(start)))

		return result, err
	}
}
