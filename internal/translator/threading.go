package translator

import (
	"bytes"
	"strings"

	gomessage "github.com/emersion/go-message"
)

// ExtractReferences parses the References header from raw message bytes,
// returning the angle-bracketed message-IDs in order. Returns nil if the
// header is absent or the message fails to parse. Exported for callers
// composing a reply, who need the replied message's own References chain to
// extend rather than replace.
func ExtractReferences(raw []byte) []string {
	return extractReferences(raw)
}

// extractReferences parses the References header from raw message bytes,
// returning the angle-bracketed message-IDs in order. Returns nil if the
// header is absent or the message fails to parse.
func extractReferences(raw []byte) []string {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	header := entity.Header.Get("References")
	if header == "" {
		return nil
	}
	var refs []string
	for _, part := range strings.Fields(header) {
		if strings.HasPrefix(part, "<") && strings.HasSuffix(part, ">") {
			refs = append(refs, part)
		}
	}
	return refs
}

// threadID derives a thread identifier from a message's own ID, its
// In-Reply-To, and its References chain: the first (oldest) entry in
// References wins, falling back to In-Reply-To, falling back to the
// message's own ID when it starts a new thread.
func threadID(messageID, inReplyTo string, references []string) string {
	if len(references) > 0 {
		return strings.Trim(references[0], "<>")
	}
	if inReplyTo != "" {
		return strings.Trim(inReplyTo, "<>")
	}
	return strings.Trim(messageID, "<>")
}
