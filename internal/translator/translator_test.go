package translator

import (
	"strings"
	"testing"
)

func TestTranslatePlainText(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: Bob <bob@example.com>",
		"Subject: Hello",
		"Message-Id: <abc123@example.com>",
		"Date: Mon, 02 Jan 2006 15:04:05 +0000",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hi Bob, just checking in.",
		"> quoted reply line",
	}, "\r\n"))

	msg, err := Translate(raw, "grant-1", "INBOX", false, true)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if msg.MessageID != "abc123@example.com" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if msg.ThreadID != msg.MessageID {
		t.Errorf("expected ThreadID to fall back to MessageID, got %q", msg.ThreadID)
	}
	if len(msg.From) != 1 || msg.From[0].Email != "alice@example.com" {
		t.Errorf("From = %+v", msg.From)
	}
	if msg.Snippet != "Hi Bob, just checking in." {
		t.Errorf("Snippet = %q", msg.Snippet)
	}
	if !msg.Unread || msg.Starred {
		t.Errorf("expected Unread=true Starred=false, got Unread=%v Starred=%v", msg.Unread, msg.Starred)
	}
	if msg.Folders[0] != "INBOX" {
		t.Errorf("Folders = %v", msg.Folders)
	}
}

func TestTranslateThreadsOnReferences(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: Bob <bob@example.com>",
		"Subject: Re: Hello",
		"Message-Id: <reply1@example.com>",
		"In-Reply-To: <abc123@example.com>",
		"References: <abc123@example.com> <mid2@example.com>",
		"Date: Mon, 02 Jan 2006 15:04:05 +0000",
		"Content-Type: text/plain",
		"",
		"Replying now.",
	}, "\r\n"))

	msg, err := Translate(raw, "grant-1", "INBOX", false, false)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if msg.ThreadID != "abc123@example.com" {
		t.Errorf("ThreadID = %q, want oldest reference", msg.ThreadID)
	}
}

func TestGenerateSnippetDropsQuotedLinesAndTruncates(t *testing.T) {
	body := "First line.\n> quoted\nSecond line.\n" + strings.Repeat("x", 200)
	snippet := generateSnippet(body, 20)
	if strings.Contains(snippet, "quoted") {
		t.Errorf("snippet should drop quoted lines, got %q", snippet)
	}
	if !strings.HasSuffix(snippet, "...") {
		t.Errorf("expected truncated snippet to end with ellipsis, got %q", snippet)
	}
}

func TestLooksLikeGibberish(t *testing.T) {
	if looksLikeGibberish("this is perfectly normal english text") {
		t.Error("normal text flagged as gibberish")
	}
	if !looksLikeGibberish(strings.Repeat("�", 20)) {
		t.Error("replacement-character-heavy string not flagged as gibberish")
	}
}

func TestExtractCharsetFromHTML(t *testing.T) {
	html := []byte(`<html><head><meta charset="iso-8859-1"></head><body>hi</body></html>`)
	if got := extractCharsetFromHTML(html); got != "iso-8859-1" {
		t.Errorf("extractCharsetFromHTML = %q", got)
	}
	if got := extractCharsetFromHTML([]byte("<html></html>")); got != "" {
		t.Errorf("expected empty charset, got %q", got)
	}
}
