package handler

import (
	"net/http"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/pkg/httputil"
)

// RecipientKeyResponse は受信者の公開鍵のレスポンス形式。
type RecipientKeyResponse struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
}

// SubmitRequest はフォーム送信のリクエスト形式。内容はクライアント側で暗号化済み。
type SubmitRequest struct {
	EncryptedContent string `json:"encrypted_content"`
}

// SubmitResponse はフォーム送信のレスポンス形式。
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Envelope     string `json:"envelope"`
	Signature    string `json:"signature"`
}

// SubmissionResponse は保存済み送信データのレスポンス形式。
type SubmissionResponse struct {
	ID            string `json:"id"`
	FormID        string `json:"form_id"`
	EncryptedData string `json:"encrypted_data"`
	Envelope      string `json:"envelope"`
	Signature     string `json:"signature"`
	SubmittedAt   string `json:"submitted_at"`
}

// GetRecipientKeys はフォームの受信者の公開鍵を返す。クライアントは送信前にこれで暗号化する。
func (h *Handler) GetRecipientKeys(w http.ResponseWriter, r *http.Request) {
	formID, err := uuidParam(r, "form_id")
	if err != nil {
		writeError(w, r, "GET_RECIPIENT_KEYS", "", err)
		return
	}
	keys, err := h.submissions.RetrieveRecipientKeys(r.Context(), formID)
	if err != nil {
		writeError(w, r, "GET_RECIPIENT_KEYS", formID, err)
		return
	}
	resp := make([]RecipientKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = RecipientKeyResponse{ID: k.ID, Fingerprint: k.Fingerprint, PublicKey: k.PublicKey}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// SubmitForm は暗号化済みの送信内容に署名して保存する。
func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	formID, err := uuidParam(r, "form_id")
	if err != nil {
		writeError(w, r, "SUBMIT_FORM", "", err)
		return
	}
	var req SubmitRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	signed, err := h.submissions.Submit(r.Context(), formID, req.EncryptedContent)
	if err != nil {
		writeError(w, r, "SUBMIT_FORM", formID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "SUBMIT_FORM", "", signed.SubmissionID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, SubmitResponse{
		SubmissionID: signed.SubmissionID,
		Envelope:     signed.Envelope,
		Signature:    signed.Signature,
	})
}

// ListSubmissions はフォームの送信データを返す。
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	formID, err := uuidParam(r, "form_id")
	if err != nil {
		writeError(w, r, "LIST_SUBMISSIONS", "", err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	submissions, err := h.submissions.ListSubmissions(r.Context(), actor, formID)
	if err != nil {
		writeError(w, r, "LIST_SUBMISSIONS", formID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "LIST_SUBMISSIONS", actor.UserID, formID, middleware.AuditSuccess)
	resp := make([]SubmissionResponse, len(submissions))
	for i, s := range submissions {
		resp[i] = toSubmissionResponse(s)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func toSubmissionResponse(s *domain.FormSubmission) SubmissionResponse {
	return SubmissionResponse{
		ID:            s.ID,
		FormID:        s.FormID,
		EncryptedData: s.EncryptedData,
		Envelope:      s.Envelope,
		Signature:     s.Signature,
		SubmittedAt:   formatTime(s.SubmittedAt),
	}
}
