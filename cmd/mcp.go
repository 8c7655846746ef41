package cmd

import (
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxsorter/internal/classifier"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/tools/classify_tools"
)

func newMCPCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the classifier as MCP tools over stdio",
		Long: `Start a Model Context Protocol (MCP) server on stdin/stdout so AI
assistants can classify email content.

Tools:
  - classify_email: classify a piece of email content
  - classify_emails: classify up to 50 emails in one call
  - list_categories: list the possible categories

Resources:
  - inboxsorter://categories

Logs go to stderr; stdout carries the protocol only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Debug)

			mcpSrv, err := newMCPServer(classifier.New(classifier.Config{
				DefaultAPIKey: cfg.OpenAI.APIKey,
				BaseURL:       cfg.OpenAI.BaseURL,
				Model:         cfg.OpenAI.Model,
			}, nil, logger), logger)
			if err != nil {
				return err
			}
			return runStdioServer(mcpSrv)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	cmd.Flags().String("openai-api-key", "", "Default OpenAI API key (OPENAI_API_KEY)")
	cmd.Flags().String("openai-base-url", "", "OpenAI-compatible API base URL including /v1")
	cmd.Flags().String("openai-model", "", "Chat model used for classification (default: gpt-4o-mini)")
	cmd.Flags().Bool("debug", false, "Enable debug logging")

	return cmd
}

func newMCPServer(c *classifier.Classifier, logger *slog.Logger) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxsorter", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := classify_tools.RegisterClassifyTools(mcpSrv, c, logger); err != nil {
		return nil, fmt.Errorf("failed to register classify tools: %w", err)
	}
	classify_tools.RegisterResources(mcpSrv)
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	if err := <-serverDone; err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
