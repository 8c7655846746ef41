package classify_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxsorter/internal/classifier"
)

const (
	// maxBatchSize bounds the number of emails per classify_emails call.
	maxBatchSize = 50

	batchConcurrency = 4
)

// BatchItem is the classification of one entry of a batch.
type BatchItem struct {
	Index int `json:"index"`
	classifier.Classification
}

// BatchResult aggregates a classify_emails call.
type BatchResult struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"byCategory"`
	Results    []BatchItem    `json:"results"`
}

// parseStringOrArray accepts a single string or an array of strings.
func parseStringOrArray(param any, paramName string) ([]string, error) {
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", paramName)
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		return []string{v}, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if s == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

// classifyBatch labels every entry; results keep the input order.
func classifyBatch(ctx context.Context, c Classifier, contents []string, apiKey string) BatchResult {
	items := make([]BatchItem, len(contents))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, content := range contents {
		g.Go(func() error {
			items[i] = BatchItem{Index: i, Classification: c.Classify(ctx, content, apiKey)}
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Total: len(items), ByCategory: make(map[string]int), Results: items}
	for _, item := range items {
		result.ByCategory[string(item.Category)]++
	}
	return result
}

func handleClassifyEmails(ctx context.Context, request mcp.CallToolRequest, c Classifier) (*mcp.CallToolResult, error) {
	contents, err := parseStringOrArray(request.GetArguments()["contents"], "contents")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(contents) > maxBatchSize {
		return mcp.NewToolResultError(fmt.Sprintf("at most %d emails per call, got %d", maxBatchSize, len(contents))), nil
	}
	for i, content := range contents {
		if len(content) > maxContentLength {
			return mcp.NewToolResultError(fmt.Sprintf("contents[%d] exceeds %d bytes", i, maxContentLength)), nil
		}
	}

	return mcp.NewToolResultJSON(classifyBatch(ctx, c, contents, request.GetString("openaiKey", "")))
}
