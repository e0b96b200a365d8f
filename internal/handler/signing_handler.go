package handler

import (
	"net/http"

	"github.com/formularium/formularium-backend/pkg/httputil"
)

// SigningKeyResponse はサーバーの署名用公開鍵のレスポンス形式。
type SigningKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// VerifyRequest は署名検証のリクエスト形式。
type VerifyRequest struct {
	Envelope  string `json:"envelope"`
	Signature string `json:"signature"`
}

// VerifyResponse は署名検証のレスポンス形式。
type VerifyResponse struct {
	Valid bool   `json:"valid"`
	KeyID string `json:"key_id"`
}

// GetSigningKey は署名検証用の公開鍵を返す。
func (h *Handler) GetSigningKey(w http.ResponseWriter, r *http.Request) {
	publicKey, err := h.signing.GetActivePublicKey(r.Context())
	if err != nil {
		writeError(w, r, "GET_SIGNING_KEY", "", err)
		return
	}
	httputil.JSON(w, http.StatusOK, SigningKeyResponse{PublicKey: publicKey})
}

// VerifySubmission は封筒と署名の組を検証する。
func (h *Handler) VerifySubmission(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	keyID, err := h.signing.VerifySubmission(r.Context(), req.Envelope, req.Signature)
	if err != nil {
		writeError(w, r, "VERIFY_SUBMISSION", "", err)
		return
	}
	httputil.JSON(w, http.StatusOK, VerifyResponse{Valid: true, KeyID: keyID})
}
