package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxsorter/internal/classifier"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/logging"
)

// maxStdinContent bounds the content read from stdin.
const maxStdinContent = 1 << 20

func newClassifyCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "classify [content]",
		Short: "Classify email content",
		Long: `Classify email content and print the result as JSON.

The content is taken from the argument, or read from stdin when no
argument or "-" is given. With an OpenAI API key (--openai-api-key or
OPENAI_API_KEY) an LLM decides; otherwise keyword matching is used.`,
		Example: `  inboxsorter classify "Your invoice for March is attached"
  cat message.txt | inboxsorter classify`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := classifyInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Debug)

			c := classifier.New(classifier.Config{
				DefaultAPIKey: cfg.OpenAI.APIKey,
				BaseURL:       cfg.OpenAI.BaseURL,
				Model:         cfg.OpenAI.Model,
			}, nil, logger)

			result := c.Classify(cmd.Context(), content, "")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	cmd.Flags().String("openai-api-key", "", "OpenAI API key (OPENAI_API_KEY)")
	cmd.Flags().String("openai-base-url", "", "OpenAI-compatible API base URL including /v1")
	cmd.Flags().String("openai-model", "", "Chat model used for classification (default: gpt-4o-mini)")
	cmd.Flags().Bool("debug", false, "Enable debug logging")

	return cmd
}

func classifyInput(stdin io.Reader, args []string) (string, error) {
	var content string
	if len(args) == 1 && args[0] != "-" {
		content = args[0]
	} else {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinContent))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		content = string(data)
	}

	if strings.TrimSpace(content) == "" {
		return "", errors.New("email content is required")
	}
	return content, nil
}
