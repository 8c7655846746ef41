package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

const userID = "me"

// Options configures a Fetcher.
type Options struct {
	// Endpoint overrides the Gmail API base URL.
	Endpoint string

	// HTTPClient is the base client used below the OAuth transport.
	HTTPClient *http.Client

	// Concurrency bounds in-flight metadata requests (default: DefaultConcurrency).
	Concurrency int

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Fetcher reads messages for a single user.
type Fetcher struct {
	svc         *gmail.UsersService
	concurrency int
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// NewFetcher returns a Fetcher that authenticates with accessToken.
func NewFetcher(ctx context.Context, accessToken string, opts Options) (*Fetcher, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = defaultHTTPClient
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// The OAuth transport picks its base client up from the context.
	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	httpClient := oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gmail.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Fetcher{
		svc:         svc.Users,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		logger:      logging.WithService(opts.Logger, instrumentation.ServiceGmail),
	}, nil
}

var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	},
}

// List returns up to count message summaries, newest first as returned by
// Gmail. Metadata failures for single messages drop that message; a failed
// list call or a cancelled context fails the whole operation.
func (f *Fetcher) List(ctx context.Context, count int) ([]MessageSummary, error) {
	count = ClampCount(count)

	var listed *gmail.ListMessagesResponse
	err := f.observe(ctx, "messages.list", func(ctx context.Context) error {
		var err error
		listed, err = f.svc.Messages.List(userID).MaxResults(int64(count)).Context(ctx).Do()
		return err
	}, attribute.Int(instrumentation.SpanAttrCount, count))
	if err != nil {
		return nil, newFetchError("list", err)
	}

	ids := make([]string, 0, len(listed.Messages))
	for _, m := range listed.Messages {
		if m != nil && m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	if len(ids) > count {
		ids = ids[:count]
	}

	results := make([]*MessageSummary, len(ids))
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			summary, err := f.summary(ctx, id)
			if err != nil {
				f.logger.Warn("dropping message from list", logging.MessageID(id), logging.Err(err))
				return nil
			}
			results[i] = summary
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, newFetchError("list", err)
	}

	summaries := make([]MessageSummary, 0, len(results))
	for _, s := range results {
		if s != nil {
			summaries = append(summaries, *s)
		}
	}
	return summaries, nil
}

func (f *Fetcher) summary(ctx context.Context, id string) (*MessageSummary, error) {
	var msg *gmail.Message
	err := f.observe(ctx, "messages.get", func(ctx context.Context) error {
		var err error
		msg, err = f.svc.Messages.Get(userID, id).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).Do()
		return err
	}, attribute.String(instrumentation.SpanAttrMessageID, id))
	if err != nil {
		return nil, err
	}

	return &MessageSummary{
		ID:      msg.Id,
		Sender:  headerOr(msg.Payload, "From", unknownSender),
		Subject: headerOr(msg.Payload, "Subject", noSubject),
		Snippet: msg.Snippet,
	}, nil
}

// Get fetches one message and decodes its body.
func (f *Fetcher) Get(ctx context.Context, id string) (MessageDetail, error) {
	var msg *gmail.Message
	err := f.observe(ctx, "messages.get", func(ctx context.Context) error {
		var err error
		msg, err = f.svc.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		return err
	}, attribute.String(instrumentation.SpanAttrMessageID, id))
	if err != nil {
		return MessageDetail{}, newFetchError("get", err)
	}

	body := DecodeBody(PartFromPayload(msg.Payload))
	content := body.Text
	if content == "" {
		content = body.HTML
	}
	if content == "" {
		content = msg.Snippet
	}

	return MessageDetail{
		ID:      msg.Id,
		Sender:  headerOr(msg.Payload, "From", unknownSender),
		Subject: headerOr(msg.Payload, "Subject", noSubject),
		Content: content,
	}, nil
}

// observe wraps a Gmail call in a span and records its outcome.
func (f *Fetcher) observe(ctx context.Context, operation string, call func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation, attrs...)
	defer span.End()

	start := time.Now()
	err := call(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	f.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

// headerOr returns the first header named name, matched case-insensitively,
// or fallback when it is missing or empty.
func headerOr(payload *gmail.MessagePart, name, fallback string) string {
	if payload == nil {
		return fallback
	}
	for _, h := range payload.Headers {
		if h != nil && strings.EqualFold(h.Name, name) && h.Value != "" {
			return h.Value
		}
	}
	return fallback
}
