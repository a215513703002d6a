// Package smtpsender composes and submits outbound mail: MIME composition
// grounded on the teacher's message builder, with a real SMTPS network
// client the teacher's desktop package never needed.
package smtpsender

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hkdb/nolas-go/internal/models"
)

// Attachment is a file to attach to an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is the input to Compose: everything needed to build one outbound
// RFC-822 message.
type Message struct {
	From       models.Address
	To         []models.Address
	Cc         []models.Address
	Bcc        []models.Address
	ReplyTo    *models.Address
	Subject    string
	TextBody   string
	HTMLBody   string
	InReplyTo  string
	References []string

	Attachments []Attachment
}

// composed is the MIME bytes plus the identifiers the caller needs to
// record and thread future replies against.
type composed struct {
	raw       []byte
	messageID string
}

// formatAddress renders a display-name/email pair per RFC 5322, Q-encoding
// the display name when it carries non-ASCII characters.
func formatAddress(a models.Address) string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", a.Name), a.Email)
}

func formatAddressList(addrs []models.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = formatAddress(a)
	}
	return strings.Join(parts, ", ")
}

func encodeSubject(subject string) string {
	for _, r := range subject {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", subject)
		}
	}
	return subject
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

func writeQuotedPrintable(w io.Writer, content string) {
	qp := quotedprintable.NewWriter(w)
	qp.Write([]byte(content))
	qp.Close()
}

// compose builds the full RFC-822 byte stream for msg, addressed from
// accountDomain (used to construct the Message-ID's right-hand side).
func compose(msg Message, accountDomain string) (composed, error) {
	var buf bytes.Buffer

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), accountDomain)

	writeHeader(&buf, "From", formatAddress(msg.From))
	if len(msg.To) > 0 {
		writeHeader(&buf, "To", formatAddressList(msg.To))
	}
	if len(msg.Cc) > 0 {
		writeHeader(&buf, "Cc", formatAddressList(msg.Cc))
	}
	if msg.ReplyTo != nil {
		writeHeader(&buf, "Reply-To", formatAddress(*msg.ReplyTo))
	}
	writeHeader(&buf, "Subject", encodeSubject(msg.Subject))
	writeHeader(&buf, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")
	if msg.InReplyTo != "" {
		writeHeader(&buf, "In-Reply-To", msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		writeHeader(&buf, "References", strings.Join(msg.References, " "))
	}

	if len(msg.Attachments) > 0 {
		if err := writeMultipartMixed(&buf, msg); err != nil {
			return composed{}, fmt.Errorf("smtpsender: compose mixed body: %w", err)
		}
	} else if msg.HTMLBody != "" && msg.TextBody != "" {
		if err := writeMultipartAlternative(&buf, msg.TextBody, msg.HTMLBody); err != nil {
			return composed{}, fmt.Errorf("smtpsender: compose alternative body: %w", err)
		}
	} else if msg.HTMLBody != "" {
		writeHeader(&buf, "Content-Type", "text/html; charset=utf-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		writeQuotedPrintable(&buf, msg.HTMLBody)
	} else {
		writeHeader(&buf, "Content-Type", "text/plain; charset=utf-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		writeQuotedPrintable(&buf, msg.TextBody)
	}

	return composed{raw: buf.Bytes(), messageID: strings.Trim(messageID, "<>")}, nil
}

func writeMultipartAlternative(buf *bytes.Buffer, textBody, htmlBody string) error {
	mp := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mp.Boundary()))
	buf.WriteString("\r\n")

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	textPart, err := mp.CreatePart(textHeader)
	if err != nil {
		return err
	}
	writeQuotedPrintable(textPart, textBody)

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	htmlPart, err := mp.CreatePart(htmlHeader)
	if err != nil {
		return err
	}
	writeQuotedPrintable(htmlPart, htmlBody)

	return mp.Close()
}

// writeMultipartMixed writes a multipart/mixed envelope containing a nested
// multipart/alternative body (when both text and HTML are present, else the
// single body part) plus one application/* part per attachment.
func writeMultipartMixed(buf *bytes.Buffer, msg Message) error {
	mp := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mp.Boundary()))
	buf.WriteString("\r\n")

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		altBoundary := uuid.NewString()
		altHeader := textproto.MIMEHeader{}
		altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altBoundary))
		bodyPart, err := mp.CreatePart(altHeader)
		if err != nil {
			return err
		}
		altWriter := multipart.NewWriter(bodyPart)
		if err := altWriter.SetBoundary(altBoundary); err != nil {
			return err
		}

		textHeader := textproto.MIMEHeader{}
		textHeader.Set("Content-Type", "text/plain; charset=utf-8")
		textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
		textPart, err := altWriter.CreatePart(textHeader)
		if err != nil {
			return err
		}
		writeQuotedPrintable(textPart, msg.TextBody)

		htmlHeader := textproto.MIMEHeader{}
		htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
		htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
		htmlPart, err := altWriter.CreatePart(htmlHeader)
		if err != nil {
			return err
		}
		writeQuotedPrintable(htmlPart, msg.HTMLBody)
		if err := altWriter.Close(); err != nil {
			return err
		}
	case msg.HTMLBody != "":
		if err := writeSinglePart(mp, "text/html; charset=utf-8", msg.HTMLBody); err != nil {
			return err
		}
	default:
		if err := writeSinglePart(mp, "text/plain; charset=utf-8", msg.TextBody); err != nil {
			return err
		}
	}

	for _, att := range msg.Attachments {
		if err := writeAttachmentPart(mp, att); err != nil {
			return err
		}
	}

	return mp.Close()
}

func writeSinglePart(mp *multipart.Writer, contentType, body string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mp.CreatePart(header)
	if err != nil {
		return err
	}
	writeQuotedPrintable(part, body)
	return nil
}

func writeAttachmentPart(mp *multipart.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))

	part, err := mp.CreatePart(header)
	if err != nil {
		return err
	}
	enc := base64LineEncoder{w: part}
	return enc.write(att.Content)
}
