package classify_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxsorter/internal/classifier"
)

const categoriesURI = "inboxsorter://categories"

type categoriesDocument struct {
	Categories []string `json:"categories"`
	// Fallback is returned when no category matches.
	Fallback string `json:"fallback"`
}

// RegisterResources registers read-only resources describing the classifier.
func RegisterResources(s *mcpserver.MCPServer) {
	categoriesResource := mcp.NewResource(
		categoriesURI,
		"Email Categories",
		mcp.WithResourceDescription("The categories the classifier assigns, in priority order"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(categoriesResource, handleCategoriesResource)
}

func handleCategoriesResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(categoriesDocument{
		Categories: categoryNames(),
		Fallback:   string(classifier.General),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func categoryNames() []string {
	names := make([]string, len(classifier.Categories))
	for i, c := range classifier.Categories {
		names[i] = string(c)
	}
	return names
}
