// Package gmail implements a Reader that fetches email messages from Gmail.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
)

// DefaultInterval is the polling interval when Config.Interval is unset.
const DefaultInterval = 60 * time.Second

// maxSeen bounds the dedup set in a long-running daemon. When the current
// generation fills up it becomes the previous one, so the reader remembers
// between maxSeen and 2*maxSeen recent message IDs.
const maxSeen = 10000

// Config holds configuration for the Gmail reader.
type Config struct {
	// Filters drive the Gmail search queries. The reader only narrows the
	// candidate set; the extraction engine re-checks every pattern.
	Filters []*filter.EmailFilter
	// Interval between polls. Defaults to DefaultInterval.
	Interval time.Duration
	// MaxResults caps messages fetched per query per poll.
	MaxResults int64
}

// Reader fetches candidate emails from Gmail and sends them to the output
// channel as api.EmailMessage values.
type Reader struct {
	client     *gmail.Service
	filters    []*filter.EmailFilter
	interval   time.Duration
	maxResults int64
	logger     *slog.Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	prevSeen map[string]struct{}
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	maxResults := cfg.MaxResults
	if maxResults == 0 {
		maxResults = 100
	}

	return &Reader{
		client:     client,
		filters:    cfg.Filters,
		interval:   interval,
		maxResults: maxResults,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}, nil
}

// Read polls Gmail until the context is canceled, sending fetched messages
// to out. The channel is closed on return.
func (r *Reader) Read(ctx context.Context, out chan<- *api.EmailMessage) error {
	defer close(out)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Poll immediately on start.
	r.poll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx, out)
		}
	}
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.EmailMessage) {
	r.logger.Info("polling gmail", "filter_count", len(r.filters))

	for _, f := range r.filters {
		if f.Disabled {
			continue
		}

		query := BuildQuery(f)
		if query == "" {
			r.logger.Debug("filter has no query criteria, skipping", "filter", f.Name)
			continue
		}

		if err := r.fetchQuery(ctx, query, out); err != nil {
			r.logger.Error("failed to fetch messages", "filter", f.Name, "error", err)
		}
	}
}

func (r *Reader) fetchQuery(ctx context.Context, query string, out chan<- *api.EmailMessage) error {
	resp, err := r.client.Users.Messages.List("me").Q(query).MaxResults(r.maxResults).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}

	for _, m := range resp.Messages {
		if r.alreadySeen(m.Id) {
			continue
		}

		full, err := r.client.Users.Messages.Get("me", m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			r.logger.Error("failed to get message", "message_id", m.Id, "error", err)
			continue
		}

		msg := ParseMessage(full)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- msg:
		}
	}

	return nil
}

// alreadySeen records id and reports whether it was sent in an earlier poll.
// The set is bounded: once the current generation reaches maxSeen it is
// rotated out, so IDs much older than the retention window may be re-sent.
// Downstream sinks are idempotent on email ID, so a rare re-send is safe.
func (r *Reader) alreadySeen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return true
	}
	if _, ok := r.prevSeen[id]; ok {
		return true
	}

	if len(r.seen) >= maxSeen {
		r.prevSeen = r.seen
		r.seen = make(map[string]struct{})
	}
	r.seen[id] = struct{}{}
	return false
}

// BuildQuery turns a filter's subject/from/to pattern lists into a Gmail
// search query, ORed together. Content patterns are not included: Gmail
// search is not a regex engine, so body matching is left to the extraction
// engine entirely.
func BuildQuery(f *filter.EmailFilter) string {
	var parts []string
	for _, p := range f.SubjectPatterns {
		parts = append(parts, fmt.Sprintf("subject:(%s)", p))
	}
	for _, p := range f.FromPatterns {
		parts = append(parts, fmt.Sprintf("from:(%s)", p))
	}
	for _, p := range f.ToPatterns {
		parts = append(parts, fmt.Sprintf("to:(%s)", p))
	}
	return strings.Join(parts, " OR ")
}

// ParseMessage converts a Gmail API message into an api.EmailMessage.
func ParseMessage(msg *gmail.Message) *api.EmailMessage {
	headers := make(map[string]string)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
	}

	out := &api.EmailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Subject:  headers["subject"],
		From:     headers["from"],
		To:       splitAddresses(headers["to"]),
		Cc:       splitAddresses(headers["cc"]),
		Labels:   msg.LabelIds,
		Date:     time.Unix(msg.InternalDate/1000, 0),
	}

	if dateHeader := headers["date"]; dateHeader != "" {
		if d, err := mail.ParseDate(dateHeader); err == nil {
			out.Date = d
		}
	}

	if msg.Payload != nil {
		out.Body = extractBody(msg.Payload)
		for _, part := range msg.Payload.Parts {
			if part.Filename != "" && strings.TrimSpace(part.Filename) != "" {
				out.HasAttachments = true
				out.Attachments = append(out.Attachments, part.Filename)
			}
		}
	}

	return out
}

// extractBody walks the MIME part tree breadth-first and decodes the first
// text/plain and text/html bodies it finds.
func extractBody(payload *gmail.MessagePart) api.Body {
	var body api.Body

	parts := []*gmail.MessagePart{payload}
	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]
		parts = append(parts, part.Parts...)

		if part.Body == nil || part.Body.Data == "" {
			continue
		}

		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			continue
		}

		switch part.MimeType {
		case "text/plain":
			if body.PlainText == "" {
				body.PlainText = string(data)
			}
		case "text/html":
			if body.HTML == "" {
				body.HTML = string(data)
			}
		}
	}

	return body
}

func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
