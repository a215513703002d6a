package translator

import (
	"bytes"
	"errors"
	"fmt"

	gomessage "github.com/emersion/go-message"
)

// ErrAttachmentNotFound is returned by ExtractAttachment when no part in the
// message matches the requested attachment id.
var ErrAttachmentNotFound = errors.New("translator: attachment not found")

// AttachmentContent is a single attachment's bytes plus the metadata needed
// to serve it as a download.
type AttachmentContent struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExtractAttachment re-walks raw looking for the attachment part at the
// sequential position named by attachmentID (an "att_N" id, 1-based in MIME
// walk order). It shares walkParts with buildAttachmentMetadata — the same
// traversal used to assign ids when a message is first translated — so a
// given id always resolves back to the same part even when two attachments
// share a filename or size. Attachment content is never retained in the
// CanonicalMessage (only metadata is), so a download request re-fetches and
// re-parses the raw message rather than reading from a cache.
func ExtractAttachment(raw []byte, attachmentID string) (*AttachmentContent, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var found *AttachmentContent
	walkParts(entity, nil, func(index int, part *gomessage.Entity, contentType string, content []byte) {
		if found != nil || fmt.Sprintf("att_%d", index) != attachmentID {
			return
		}
		meta := buildAttachmentMetadata(part, contentType, index, content)
		found = &AttachmentContent{Filename: meta.Filename, ContentType: contentType, Content: content}
	})
	if found == nil {
		return nil, ErrAttachmentNotFound
	}
	return found, nil
}
