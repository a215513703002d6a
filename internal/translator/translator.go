// Package translator converts raw RFC 822 message bytes fetched over IMAP
// into the canonical JSON message shape delivered to webhooks and returned
// by the message-lookup API.
package translator

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/hkdb/nolas-go/internal/models"
)

// maxPartSize caps how much of any single MIME part body is read into
// memory; parts beyond this are truncated rather than risking an OOM on a
// hostile or malformed message.
const maxPartSize = 10 * 1024 * 1024

// snippetLen is the number of body characters kept in the snippet field.
const snippetLen = 100

// Translate parses raw RFC 822 bytes into a CanonicalMessage. grantID,
// folder, starred and unread come from the caller (the account being
// synced, the folder being read, and the flag values the caller chooses;
// every caller in this module passes starred=false, unread=true) rather
// than from the message itself.
func Translate(raw []byte, grantID, folder string, starred, unread bool) (*models.CanonicalMessage, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	h := mail.Header{Header: entity.Header}

	messageID := strings.Trim(h.Get("Message-Id"), "<>")
	inReplyTo := h.Get("In-Reply-To")
	references := extractReferences(raw)

	subject, err := h.Subject()
	if err != nil {
		subject = decodeMIMEWord(h.Get("Subject"))
	}

	date, dateErr := h.Date()
	if dateErr != nil || date.IsZero() {
		date = time.Now()
	}

	msg := &models.CanonicalMessage{
		GrantID:   grantID,
		MessageID: messageID,
		ThreadID:  threadID(messageID, inReplyTo, references),
		Subject:   subject,
		From:      addressList(h, "From"),
		To:        addressList(h, "To"),
		Cc:        addressList(h, "Cc"),
		Bcc:       addressList(h, "Bcc"),
		ReplyTo:   addressList(h, "Reply-To"),
		Date:      date.Unix(),
		Folders:   []string{folder},
		Starred:   starred,
		Unread:    unread,
	}

	body := parseBody(entity)
	msg.Body = body.html
	if msg.Body == "" {
		msg.Body = body.text
	}
	msg.Snippet = generateSnippet(body.text, snippetLen)
	msg.Attachments = body.attachments

	return msg, nil
}

// addressList resolves a header field to canonical addresses, falling back
// to an empty slice (never nil-vs-empty ambiguity in the JSON payload) when
// the field is absent or malformed.
func addressList(h mail.Header, field string) []models.Address {
	addrs, err := h.AddressList(field)
	if err != nil || len(addrs) == 0 {
		return []models.Address{}
	}
	out := make([]models.Address, len(addrs))
	for i, a := range addrs {
		name := a.Name
		if name == "" {
			name = a.Address
		}
		out[i] = models.Address{Name: name, Email: a.Address}
	}
	return out
}

type parsedBody struct {
	text        string
	html        string
	attachments []models.Attachment
}

func parseBody(entity *gomessage.Entity) parsedBody {
	var result parsedBody
	if entity.MultipartReader() == nil {
		parseSinglePartBody(entity, &result)
		return result
	}

	walkParts(entity, func(contentType string, params map[string]string, part *gomessage.Entity) {
		partBody, err := readLimited(part)
		if err != nil && len(partBody) == 0 {
			return
		}
		charset := params["charset"]
		if charset == "" && contentType == "text/html" {
			charset = extractCharsetFromHTML(partBody)
		}
		decoded := decodeCharset(decodeQuotedPrintableIfNeeded(partBody), charset)

		switch contentType {
		case "text/plain":
			if result.text == "" {
				result.text = decoded
			}
		case "text/html":
			if result.html == "" {
				result.html = decoded
			}
		}
	}, func(index int, part *gomessage.Entity, contentType string, content []byte) {
		result.attachments = append(result.attachments, buildAttachmentMetadata(part, contentType, index, content))
	})
	return result
}

// isAttachmentPart reports whether a non-multipart part is an attachment:
// its Content-Disposition is "attachment" and it carries a filename.
func isAttachmentPart(part *gomessage.Entity, disposition string) bool {
	if disposition != "attachment" {
		return false
	}
	ah := mail.AttachmentHeader{Header: part.Header}
	if filename, err := ah.Filename(); err == nil && filename != "" {
		return true
	}
	_, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	return dispParams["filename"] != ""
}

// walkParts traverses entity's MIME tree depth-first, left-to-right —
// recursing into nested multiparts and invoking onAttachment for each
// attachment leaf and onText for each leaf without an attachment
// disposition, in that same order; an attachment-disposition part without
// a filename is passed to neither. onAttachment's index is the 1-based
// sequential position among attachment parts only, matching the "att_N" ids
// SPEC_FULL.md assigns in walk order; ExtractAttachment reuses this same
// walk so the ids it's given always resolve to the same part.
func walkParts(
	entity *gomessage.Entity,
	onText func(contentType string, params map[string]string, part *gomessage.Entity),
	onAttachment func(index int, part *gomessage.Entity, contentType string, content []byte),
) {
	counter := 0
	var walk func(e *gomessage.Entity)
	walk = func(e *gomessage.Entity) {
		mr := e.MultipartReader()
		if mr == nil {
			return
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}

			contentType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))

			if strings.HasPrefix(contentType, "multipart/") {
				walk(part)
				continue
			}

			if isAttachmentPart(part, disposition) {
				counter++
				content, _ := readLimited(part)
				if onAttachment != nil {
					onAttachment(counter, part, contentType, content)
				}
				continue
			}
			if disposition == "attachment" {
				continue
			}

			if onText != nil {
				onText(contentType, params, part)
			}
		}
	}
	walk(entity)
}

func parseSinglePartBody(entity *gomessage.Entity, result *parsedBody) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))

	body, err := readLimited(entity)
	if err != nil && len(body) == 0 {
		return
	}

	charset := params["charset"]
	if charset == "" && contentType == "text/html" {
		charset = extractCharsetFromHTML(body)
	}
	decoded := decodeCharset(decodeQuotedPrintableIfNeeded(body), charset)

	if contentType == "text/html" {
		result.html = decoded
	} else {
		result.text = decoded
	}
}

// buildAttachmentMetadata assigns the attachment's id as "att_N" for its
// sequential position in MIME-part walk order, per the canonical message
// schema, rather than deriving it from filename/size (two same-sized parts
// with the same or absent filename would otherwise collide on one id).
func buildAttachmentMetadata(part *gomessage.Entity, contentType string, index int, content []byte) models.Attachment {
	_, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	ah := mail.AttachmentHeader{Header: part.Header}
	filename, _ := ah.Filename()
	if filename == "" {
		filename = dispParams["filename"]
	}
	filename = decodeMIMEWord(filename)
	if filename == "" {
		filename = "attachment"
	}

	return models.Attachment{
		ID:          fmt.Sprintf("att_%d", index),
		Filename:    filename,
		ContentType: contentType,
		Size:        len(content),
	}
}

func readLimited(part *gomessage.Entity) ([]byte, error) {
	return io.ReadAll(io.LimitReader(part.Body, maxPartSize))
}

// generateSnippet collapses a plain-text body to a single line preview,
// dropping quoted reply lines, truncated to maxLen characters.
func generateSnippet(body string, maxLen int) string {
	var parts []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, ">") {
			parts = append(parts, line)
		}
	}
	text := strings.Join(parts, " ")
	if runes := []rune(text); len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}
