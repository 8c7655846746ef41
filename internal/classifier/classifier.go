package classifier

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

// Config configures a Classifier.
type Config struct {
	// DefaultAPIKey is used when the caller supplies no key (OPENAI_API_KEY).
	DefaultAPIKey string

	// BaseURL overrides the OpenAI API base URL, including the /v1 suffix.
	BaseURL string

	// Model defaults to gpt-4o-mini.
	Model string

	HTTPClient *http.Client

	// BreakerTimeout is how long the breaker stays open (default 30s).
	BreakerTimeout time.Duration
}

// Classifier labels emails. It is safe for concurrent use.
type Classifier struct {
	defaultKey string
	llm        completer
	breaker    *gobreaker.CircuitBreaker
	intn       func(int) int
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// New returns a Classifier.
func New(cfg Config, metrics *instrumentation.Metrics, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	logger = logging.WithOperation(logger, "classify")

	return &Classifier{
		defaultKey: cfg.DefaultAPIKey,
		llm: &openAICompleter{
			baseURL:    cfg.BaseURL,
			model:      cfg.Model,
			httpClient: cfg.HTTPClient,
			metrics:    metrics,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openai",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isClientError(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		}),
		intn:    rand.IntN,
		metrics: metrics,
		logger:  logger,
	}
}

// Classify labels content. apiKey takes precedence over the configured
// default; with neither, or when the LLM path fails, keyword matching
// decides.
func (c *Classifier) Classify(ctx context.Context, content, apiKey string) Classification {
	result := c.classify(ctx, content, apiKey)
	c.metrics.RecordClassification(ctx, string(result.Source), string(result.Category))
	c.logger.Debug("classified content",
		logging.Category(string(result.Category)),
		logging.Source(string(result.Source)))
	return result
}

func (c *Classifier) classify(ctx context.Context, content, apiKey string) Classification {
	key := apiKey
	if key == "" {
		key = c.defaultKey
	}
	if key == "" {
		c.logger.Debug("no API key available, using keyword classification")
		return classifyByKeywords(content, c.intn)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.llm.complete(ctx, key, content)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Debug("LLM circuit open, using keyword classification")
		} else {
			c.logger.Warn("LLM classification failed, using keyword classification", logging.Err(err))
		}
		return classifyByKeywords(content, c.intn)
	}

	category, confidence := parseReply(out.(string))
	return Classification{Category: category, Confidence: confidence, Source: SourceLLM}
}

// BreakerState reports the LLM circuit breaker state: closed, half-open or open.
func (c *Classifier) BreakerState() string {
	return c.breaker.State().String()
}
