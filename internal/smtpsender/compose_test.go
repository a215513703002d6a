package smtpsender

import (
	"strings"
	"testing"

	"github.com/hkdb/nolas-go/internal/models"
)

func TestComposePlainTextSetsHeaders(t *testing.T) {
	msg := Message{
		From:     models.Address{Name: "Alice", Email: "alice@example.com"},
		To:       []models.Address{{Email: "bob@example.com"}},
		Subject:  "Hello",
		TextBody: "hi there",
	}

	out, err := compose(msg, "example.com")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	raw := string(out.raw)

	if !strings.Contains(raw, "To: bob@example.com") {
		t.Error("missing To header")
	}
	if !strings.Contains(raw, "Subject: Hello") {
		t.Error("missing Subject header")
	}
	if !strings.HasSuffix(out.messageID, "@example.com") {
		t.Errorf("expected message id to end with @example.com, got %q", out.messageID)
	}
	if strings.Contains(out.messageID, "<") || strings.Contains(out.messageID, ">") {
		t.Errorf("expected message id stripped of angle brackets, got %q", out.messageID)
	}
}

func TestComposeSetsThreadingHeaders(t *testing.T) {
	msg := Message{
		From:       models.Address{Email: "alice@example.com"},
		To:         []models.Address{{Email: "bob@example.com"}},
		TextBody:   "reply body",
		InReplyTo:  "<orig@example.com>",
		References: []string{"<orig@example.com>"},
	}

	out, err := compose(msg, "example.com")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	raw := string(out.raw)
	if !strings.Contains(raw, "In-Reply-To: <orig@example.com>") {
		t.Error("missing In-Reply-To header")
	}
	if !strings.Contains(raw, "References: <orig@example.com>") {
		t.Error("missing References header")
	}
}

func TestComposeWithAttachmentProducesMultipartMixed(t *testing.T) {
	msg := Message{
		From:     models.Address{Email: "alice@example.com"},
		To:       []models.Address{{Email: "bob@example.com"}},
		TextBody: "see attached",
		HTMLBody: "<p>see attached</p>",
		Attachments: []Attachment{
			{Filename: "a.txt", ContentType: "text/plain", Content: []byte("hello world")},
		},
	}

	out, err := compose(msg, "example.com")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	raw := string(out.raw)
	if !strings.Contains(raw, "multipart/mixed") {
		t.Error("expected multipart/mixed envelope")
	}
	if !strings.Contains(raw, "multipart/alternative") {
		t.Error("expected nested multipart/alternative for text+html body")
	}
	if !strings.Contains(raw, `filename="a.txt"`) {
		t.Error("expected attachment filename in Content-Disposition")
	}
}

func TestComposeAlternativeWithoutAttachments(t *testing.T) {
	msg := Message{
		From:     models.Address{Email: "alice@example.com"},
		To:       []models.Address{{Email: "bob@example.com"}},
		TextBody: "plain",
		HTMLBody: "<p>html</p>",
	}

	out, err := compose(msg, "example.com")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	raw := string(out.raw)
	if !strings.Contains(raw, "multipart/alternative") {
		t.Error("expected multipart/alternative")
	}
	if strings.Contains(raw, "multipart/mixed") {
		t.Error("did not expect multipart/mixed without attachments")
	}
}
