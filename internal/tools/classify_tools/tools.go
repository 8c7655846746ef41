package classify_tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxsorter/internal/classifier"
)

// Classifier labels email content. *classifier.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, content, apiKey string) classifier.Classification
}

// maxContentLength bounds the content accepted by classify_email.
const maxContentLength = 64 << 10

// RegisterClassifyTools registers the classifier tools with the MCP server.
func RegisterClassifyTools(s *mcpserver.MCPServer, c Classifier, logger *slog.Logger) error {
	if c == nil {
		return fmt.Errorf("classifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	classifyTool := mcp.NewTool("classify_email",
		mcp.WithDescription("Classify email content as Important, Promotions, Social, Marketing, Spam or General"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Email text to classify, e.g. the snippet or the body"),
		),
		mcp.WithString("openaiKey",
			mcp.Description("OpenAI API key for this call. Without one the server default is used, then keyword matching."),
		),
	)

	s.AddTool(classifyTool, instrumented("classify_email", logger, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleClassifyEmail(ctx, request, c)
	}))

	classifyBatchTool := mcp.NewTool("classify_emails",
		mcp.WithDescription(fmt.Sprintf("Classify up to %d emails in one call; results keep the input order", maxBatchSize)),
		mcp.WithArray("contents",
			mcp.Required(),
			mcp.Description("Email texts to classify (a single string is accepted too)"),
			mcp.WithStringItems(),
		),
		mcp.WithString("openaiKey",
			mcp.Description("OpenAI API key for this call"),
		),
	)

	s.AddTool(classifyBatchTool, instrumented("classify_emails", logger, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleClassifyEmails(ctx, request, c)
	}))

	listCategoriesTool := mcp.NewTool("list_categories",
		mcp.WithDescription("List the categories classify_email can return, in priority order"),
	)

	s.AddTool(listCategoriesTool, instrumented("list_categories", logger, handleListCategories))

	return nil
}

func handleClassifyEmail(ctx context.Context, request mcp.CallToolRequest, c Classifier) (*mcp.CallToolResult, error) {
	content := request.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content is required"), nil
	}
	if len(content) > maxContentLength {
		return mcp.NewToolResultError(fmt.Sprintf("content exceeds %d bytes", maxContentLength)), nil
	}

	result := c.Classify(ctx, content, request.GetString("openaiKey", ""))
	return mcp.NewToolResultJSON(result)
}

func handleListCategories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(map[string][]string{"categories": categoryNames()})
}
