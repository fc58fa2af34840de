package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
)

func bankFilter(t *testing.T) *filter.EmailFilter {
	t.Helper()
	f := &filter.EmailFilter{
		ID:              "bank",
		Name:            "Bank Notification",
		SubjectPatterns: []string{`Transacción`},
		Rules: []filter.ExtractionRule{
			{
				Name:        "monto",
				Pattern:     `USD\s+([\d,.]+)`,
				ContentType: filter.ScopeTable,
				TableLabel:  "Monto",
			},
		},
	}
	if err := f.Compile(); err != nil {
		t.Fatalf("compiling filter: %v", err)
	}
	return f
}

func bankEmail(id string) *api.EmailMessage {
	return &api.EmailMessage{
		ID:      id,
		Subject: "Transacción realizada",
		From:    "alertas@banco.com.do",
		Body:    api.Body{PlainText: "Monto: USD 42.00"},
	}
}

func TestRun_Batch(t *testing.T) {
	filters := []*filter.EmailFilter{bankFilter(t)}

	emails := make([]*api.EmailMessage, 0, 20)
	for i := 0; i < 20; i++ {
		emails = append(emails, bankEmail(fmt.Sprintf("m%02d", i)))
	}
	// Mix in unrelated mail that matches no filter.
	emails = append(emails, &api.EmailMessage{
		ID:      "spam",
		Subject: "Weekly newsletter",
	})

	r := New(filters, Config{Workers: 3}, nil)
	results, errs := r.Run(context.Background(), emails)

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(results) != 20 {
		t.Fatalf("got %d results, want 20 (unmatched mail is skipped, not an error)", len(results))
	}

	seen := make(map[string]struct{})
	for _, res := range results {
		if res.Fields["monto"] != "42.00" {
			t.Errorf("email %s: monto = %q, want 42.00", res.EmailID, res.Fields["monto"])
		}
		seen[res.EmailID] = struct{}{}
	}
	if _, ok := seen["spam"]; ok {
		t.Error("unmatched email must not appear in results")
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	r := New([]*filter.EmailFilter{bankFilter(t)}, Config{}, nil)

	results, errs := r.Run(context.Background(), nil)
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("empty batch produced results=%d errs=%d", len(results), len(errs))
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emails := []*api.EmailMessage{bankEmail("m1"), bankEmail("m2")}
	r := New([]*filter.EmailFilter{bankFilter(t)}, Config{Workers: 1}, nil)

	results, errs := r.Run(ctx, emails)
	if len(errs) != 0 {
		t.Fatalf("cancellation must not surface as email errors: %v", errs)
	}
	if len(results) != 0 {
		t.Errorf("cancelled batch should process no emails, got %d results", len(results))
	}
}

func TestRun_PanicIsolation(t *testing.T) {
	// An uncompiled filter has nil rule regexps; applying it panics inside
	// the pipeline. The runner must capture that as the email's error and
	// keep processing the rest of the batch.
	broken := &filter.EmailFilter{
		ID:    "broken",
		Name:  "broken",
		Rules: []filter.ExtractionRule{{Name: "x", Pattern: `.`, ContentType: filter.ScopeText}},
	}

	emails := []*api.EmailMessage{
		{ID: "m1", Subject: "anything", Body: api.Body{PlainText: "body"}},
		{ID: "m2", Subject: "anything", Body: api.Body{PlainText: "body"}},
	}

	r := New([]*filter.EmailFilter{broken}, Config{Workers: 2}, nil)
	results, errs := r.Run(context.Background(), emails)

	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if len(errs) != 2 {
		t.Fatalf("expected an error per email, got %d: %v", len(errs), errs)
	}
	for _, e := range errs {
		if e.EmailID == "" || e.Err == nil {
			t.Errorf("incomplete email error: %+v", e)
		}
	}
}

func TestEmailError(t *testing.T) {
	err := EmailError{EmailID: "m9", Err: fmt.Errorf("boom")}
	if err.Error() != "email m9: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Unwrap() == nil {
		t.Error("Unwrap() should expose the cause")
	}
}

func TestProcess_Stream(t *testing.T) {
	r := New([]*filter.EmailFilter{bankFilter(t)}, Config{Workers: 2}, nil)

	in := make(chan *api.EmailMessage, 5)
	for i := 0; i < 4; i++ {
		in <- bankEmail(fmt.Sprintf("m%d", i))
	}
	in <- &api.EmailMessage{ID: "spam", Subject: "Weekly newsletter"}
	close(in)

	out := make(chan *api.ExtractionResult, 5)
	if err := r.Process(context.Background(), in, out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var results []*api.ExtractionResult
	for res := range out {
		results = append(results, res)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, res := range results {
		if res.Fields["monto"] != "42.00" {
			t.Errorf("Fields[monto] = %q, want %q", res.Fields["monto"], "42.00")
		}
	}
}

func TestProcess_ClosesOutOnCancel(t *testing.T) {
	r := New([]*filter.EmailFilter{bankFilter(t)}, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan *api.EmailMessage)
	out := make(chan *api.ExtractionResult, 1)
	if err := r.Process(ctx, in, out); err != context.Canceled {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if _, ok := <-out; ok {
		t.Error("out channel not closed after cancellation")
	}
}
