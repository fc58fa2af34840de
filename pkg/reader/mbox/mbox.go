// Package mbox implements a Reader that sources email messages from a local
// mbox file. It is used for offline runs and for replaying captured mail
// during development.
package mbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"strings"

	gomb "github.com/emersion/go-mbox"

	"github.com/mailscout/mailscout/pkg/api"
)

// Reader reads every message of an mbox file once and closes the channel.
type Reader struct {
	path   string
	logger *slog.Logger
}

// New creates an mbox reader for the given file path.
func New(path string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{path: path, logger: logger}
}

// Read sends every parseable message in the mbox to out, then closes it.
// Messages that fail to parse are logged and skipped.
func (r *Reader) Read(ctx context.Context, out chan<- *api.EmailMessage) error {
	defer close(out)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	mr := gomb.NewReader(f)
	n := 0
	for {
		raw, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading mbox entry: %w", err)
		}

		n++
		msg, err := parseMessage(raw, fmt.Sprintf("%s#%d", r.path, n))
		if err != nil {
			r.logger.Warn("skipping unparseable message", "index", n, "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- msg:
		}
	}

	r.logger.Info("mbox read complete", "path", r.path, "messages", n)
	return nil
}

// parseMessage parses one RFC 5322 message. id is a fallback identifier for
// messages without a Message-ID header.
func parseMessage(body io.Reader, id string) (*api.EmailMessage, error) {
	m, err := mail.ReadMessage(body)
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	out := &api.EmailMessage{
		ID:      strings.Trim(m.Header.Get("Message-ID"), "<>"),
		Subject: decodeHeader(m.Header.Get("Subject")),
		From:    m.Header.Get("From"),
		To:      addressList(m.Header, "To"),
		Cc:      addressList(m.Header, "Cc"),
	}
	if out.ID == "" {
		out.ID = id
	}
	if d, err := m.Header.Date(); err == nil {
		out.Date = d
	}

	out.Body, err = readBody(m)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readBody collects the text/plain and text/html parts of a message,
// handling both flat and multipart bodies.
func readBody(m *mail.Message) (api.Body, error) {
	var body api.Body

	contentType := m.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, fmt.Errorf("parsing content type: %w", err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(m.Body)
		if err != nil {
			return body, fmt.Errorf("reading body: %w", err)
		}
		assignBody(&body, mediaType, string(data))
		return body, nil
	}

	mr := multipart.NewReader(m.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return body, fmt.Errorf("reading part: %w", err)
		}

		partType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			continue
		}
		data, err := io.ReadAll(part)
		if err != nil {
			continue
		}
		assignBody(&body, partType, string(data))
	}

	return body, nil
}

func assignBody(body *api.Body, mediaType, data string) {
	switch mediaType {
	case "text/plain":
		if body.PlainText == "" {
			body.PlainText = data
		}
	case "text/html":
		if body.HTML == "" {
			body.HTML = data
		}
	}
}

func addressList(h mail.Header, key string) []string {
	addrs, err := h.AddressList(key)
	if err != nil {
		if raw := h.Get(key); raw != "" {
			return []string{raw}
		}
		return nil
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(s); err == nil {
		return decoded
	}
	return s
}
