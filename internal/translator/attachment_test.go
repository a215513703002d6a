package translator

import "testing"

const rawDuplicateAttachments = "From: Alice <alice@example.com>\r\n" +
	"To: Bob <bob@example.com>\r\n" +
	"Subject: Two attachments\r\n" +
	"Message-Id: <dup@example.com>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
	"Content-Type: multipart/mixed; boundary=\"BOUND\"\r\n" +
	"\r\n" +
	"--BOUND\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"body text\r\n" +
	"--BOUND\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=\"dup.txt\"\r\n" +
	"\r\n" +
	"AAAA\r\n" +
	"--BOUND\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=\"dup.txt\"\r\n" +
	"\r\n" +
	"BBBB\r\n" +
	"--BOUND--\r\n"

// TestDuplicateNamedAttachmentsGetDistinctIDs guards against the collision
// a filename+size derived id would produce for two same-named, same-sized
// attachments: both must be addressable and distinguishable.
func TestDuplicateNamedAttachmentsGetDistinctIDs(t *testing.T) {
	msg, err := Translate([]byte(rawDuplicateAttachments), "grant-1", "INBOX", false, true)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].ID == msg.Attachments[1].ID {
		t.Fatalf("expected distinct ids, both were %q", msg.Attachments[0].ID)
	}
	if msg.Attachments[0].ID != "att_1" || msg.Attachments[1].ID != "att_2" {
		t.Errorf("expected att_1/att_2 in walk order, got %q/%q", msg.Attachments[0].ID, msg.Attachments[1].ID)
	}
}

func TestExtractAttachmentReturnsTheRequestedPart(t *testing.T) {
	first, err := ExtractAttachment([]byte(rawDuplicateAttachments), "att_1")
	if err != nil {
		t.Fatalf("extract att_1: %v", err)
	}
	if string(first.Content) != "AAAA" {
		t.Errorf("att_1 content = %q, want AAAA", first.Content)
	}

	second, err := ExtractAttachment([]byte(rawDuplicateAttachments), "att_2")
	if err != nil {
		t.Fatalf("extract att_2: %v", err)
	}
	if string(second.Content) != "BBBB" {
		t.Errorf("att_2 content = %q, want BBBB", second.Content)
	}
}

func TestExtractAttachmentUnknownIDReturnsNotFound(t *testing.T) {
	if _, err := ExtractAttachment([]byte(rawDuplicateAttachments), "att_99"); err != ErrAttachmentNotFound {
		t.Errorf("expected ErrAttachmentNotFound, got %v", err)
	}
}
