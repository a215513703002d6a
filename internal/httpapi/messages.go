package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hkdb/nolas-go/internal/translator"
)

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	account := s.resolveAccount(w, r)
	if account == nil {
		return
	}
	messageID := chi.URLParam(r, "message_id")

	folderHint := r.URL.Query().Get("folder_hint")
	uidHint, _ := strconv.ParseUint(r.URL.Query().Get("uid_hint"), 10, 32)

	msg, err := s.Messages.GetByMessageId(r.Context(), account, messageID, folderHint, uint32(uidHint))
	if err != nil {
		writeError(w, providerError("failed to fetch message"))
		return
	}
	if msg == nil {
		writeError(w, notFound("message not found"))
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

const defaultListLimit = 50

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	account := s.resolveAccount(w, r)
	if account == nil {
		return
	}

	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = "INBOX"
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := s.Messages.ListMessages(r.Context(), account, folder, limit, offset)
	if err != nil {
		writeError(w, providerError("failed to list messages"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	account := s.resolveAccount(w, r)
	if account == nil {
		return
	}
	attachmentID := chi.URLParam(r, "attachment_id")
	messageID := r.URL.Query().Get("message_id")
	if messageID == "" {
		writeError(w, badRequest("message_id query parameter is required"))
		return
	}

	raw, err := s.Messages.GetRawByMessageId(r.Context(), account, messageID)
	if err != nil {
		writeError(w, providerError("failed to fetch message"))
		return
	}
	if raw == nil {
		writeError(w, notFound("message not found"))
		return
	}

	attachment, err := translator.ExtractAttachment(raw, attachmentID)
	if err != nil {
		writeError(w, notFound("attachment not found"))
		return
	}

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+attachment.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(attachment.Content)
}
