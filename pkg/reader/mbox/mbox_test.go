package mbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailscout/mailscout/pkg/api"
)

const sampleMbox = `From alertas@banco.com.do Mon Mar 24 16:26:00 2025
From: alertas@banco.com.do
To: cliente@example.com
Subject: Notificacion de Transaccion
Date: Mon, 24 Mar 2025 16:26:00 +0000
Message-ID: <abc-123@banco.com.do>
Content-Type: text/plain

Monto: USD 1,500.00
Numero de referencia: 239019074182

From noreply@tienda.com Tue Mar 25 09:00:00 2025
From: noreply@tienda.com
To: cliente@example.com
Subject: Weekly deals
Content-Type: text/html

<html><body><p>Great offers!</p></body></html>
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mbox")
	if err := os.WriteFile(path, []byte(sampleMbox), 0o600); err != nil {
		t.Fatalf("writing mbox fixture: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []*api.EmailMessage {
	t.Helper()

	out := make(chan *api.EmailMessage, 16)
	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Read(context.Background(), out)
	}()

	var msgs []*api.EmailMessage
	for msg := range out {
		msgs = append(msgs, msg)
	}
	if err := <-errChan; err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	return msgs
}

func TestRead(t *testing.T) {
	r := New(writeSample(t), nil)
	msgs := readAll(t, r)

	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	first := msgs[0]
	if first.ID != "abc-123@banco.com.do" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Subject != "Notificacion de Transaccion" {
		t.Errorf("Subject = %q", first.Subject)
	}
	if first.From != "alertas@banco.com.do" {
		t.Errorf("From = %q", first.From)
	}
	if len(first.To) != 1 || first.To[0] != "cliente@example.com" {
		t.Errorf("To = %v", first.To)
	}
	if first.Body.PlainText == "" || first.Body.HTML != "" {
		t.Errorf("Body = %+v, want plain text only", first.Body)
	}

	second := msgs[1]
	if second.Body.HTML == "" || second.Body.PlainText != "" {
		t.Errorf("Body = %+v, want html only", second.Body)
	}
	if second.ID == "" {
		t.Error("message without Message-ID should get a fallback identifier")
	}
}

func TestRead_MissingFile(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "nope.mbox"), nil)

	out := make(chan *api.EmailMessage, 1)
	if err := r.Read(context.Background(), out); err == nil {
		t.Fatal("expected error for missing file")
	}

	// The channel is closed even on the error path.
	if _, open := <-out; open {
		t.Error("output channel left open")
	}
}
