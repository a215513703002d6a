package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/smtpsender"
	"github.com/hkdb/nolas-go/internal/translator"
)

type sendAttachmentRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ContentB64  string `json:"content_base64"`
}

type sendMessageRequest struct {
	To       []models.Address `json:"to"`
	Cc       []models.Address `json:"cc"`
	Bcc      []models.Address `json:"bcc"`
	From     *models.Address  `json:"from"`
	ReplyTo  *models.Address  `json:"reply_to"`
	Subject  string           `json:"subject"`
	Body     string           `json:"body"`
	TextBody string           `json:"text_body"`

	ReplyToMessageID string `json:"reply_to_message_id"`

	Attachments []sendAttachmentRequest `json:"attachments"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Folder    string `json:"folder"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	account := s.resolveAccount(w, r)
	if account == nil {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("malformed request body"))
		return
	}
	if len(req.To) == 0 {
		writeError(w, badRequest("to is required"))
		return
	}

	from := models.Address{Email: account.Email}
	if req.From != nil {
		from = *req.From
	}

	msg := smtpsender.Message{
		From:     from,
		To:       req.To,
		Cc:       req.Cc,
		Bcc:      req.Bcc,
		ReplyTo:  req.ReplyTo,
		Subject:  req.Subject,
		HTMLBody: req.Body,
		TextBody: req.TextBody,
	}

	for _, a := range req.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.ContentB64)
		if err != nil {
			writeError(w, badRequest("attachment content_base64 is not valid base64"))
			return
		}
		msg.Attachments = append(msg.Attachments, smtpsender.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     content,
		})
	}

	var replied *smtpsender.RepliedMessage
	if req.ReplyToMessageID != "" {
		email, err := s.Emails.GetByMessageID(r.Context(), account.ID, req.ReplyToMessageID)
		if err != nil {
			writeError(w, internalError("failed to look up reply target"))
			return
		}
		if email == nil {
			writeError(w, badRequest("reply_to_message_id does not match a known message"))
			return
		}

		// The index row carries no References column, so the original chain
		// comes from the replied message's raw bytes, not from email.
		var references []string
		if raw, err := s.Messages.GetRawByMessageId(r.Context(), account, req.ReplyToMessageID); err != nil {
			writeError(w, internalError("failed to look up reply target"))
			return
		} else if raw != nil {
			references = translator.ExtractReferences(raw)
		}

		replied = &smtpsender.RepliedMessage{MessageID: email.MessageID, ThreadID: email.ThreadID, References: references}
	}

	result, err := s.Sender.Send(r.Context(), account, msg, replied)
	if err != nil {
		writeError(w, providerError("failed to send message"))
		return
	}

	// Index the sent message so the next ingestion cycle recognizes it as
	// self-sent and suppresses a duplicate webhook delivery.
	_ = s.Emails.Upsert(r.Context(), &models.Email{
		AccountID: account.ID,
		MessageID: result.MessageID,
		ThreadID:  result.ThreadID,
		Folder:    result.Folder,
	})

	writeJSON(w, http.StatusOK, sendMessageResponse{
		MessageID: result.MessageID,
		ThreadID:  result.ThreadID,
		Folder:    result.Folder,
	})
}
