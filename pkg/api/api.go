// Package api defines the core data structures and boundary interfaces for mailscout.
package api

import (
	"context"
	"time"
)

// Body holds the decoded body variants of an email message.
type Body struct {
	// PlainText is the text/plain part, if present.
	PlainText string `json:"plain_text,omitempty"`
	// HTML is the text/html part, if present.
	HTML string `json:"html,omitempty"`
}

// IsEmpty reports whether neither body variant is present.
func (b Body) IsEmpty() bool {
	return b.PlainText == "" && b.HTML == ""
}

// EmailMessage is a single email as supplied by a reader.
// The extraction engine treats it as immutable.
type EmailMessage struct {
	// ID is the provider-assigned message identifier.
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id,omitempty"`
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Cc       []string `json:"cc,omitempty"`
	// Date is the time the message was received.
	Date time.Time `json:"date"`
	Body Body      `json:"body"`
	// Labels are provider labels (e.g. Gmail label IDs).
	Labels         []string `json:"labels,omitempty"`
	HasAttachments bool     `json:"has_attachments,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
}

// ExtractionResult is the structured record produced for one matched email.
// Fields holds one value per canonical field name; fields whose rules did not
// match are simply absent.
type ExtractionResult struct {
	// EmailID is the source message identifier.
	EmailID string `json:"email_id"`
	// FilterID identifies the filter whose rules produced this record.
	FilterID string `json:"filter_id"`
	// FilterName is the filter's display name, carried for sinks.
	FilterName string `json:"filter_name,omitempty"`
	// Fields maps canonical field names to extracted values.
	Fields map[string]string `json:"fields"`
	// ReceivedAt is the source email's date.
	ReceivedAt time.Time `json:"received_at,omitempty"`
	// ExtractedAt is when the pipeline assembled this record.
	ExtractedAt time.Time `json:"extracted_at"`
}

// Reader reads email messages from a source and sends them to the provided
// channel. Implementations should close the channel when done or on error.
type Reader interface {
	Read(ctx context.Context, out chan<- *EmailMessage) error
}

// Writer consumes extraction results from a channel and writes them to a
// destination.
type Writer interface {
	Write(ctx context.Context, in <-chan *ExtractionResult) error
}
