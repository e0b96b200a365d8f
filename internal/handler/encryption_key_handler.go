package handler

import (
	"net/http"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/pkg/httputil"
)

// AddEncryptionKeyRequest は暗号鍵登録のリクエスト形式。
type AddEncryptionKeyRequest struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
}

// ActivateEncryptionKeyRequest は暗号鍵有効化のリクエスト形式。
// wrapped_keys は鍵の所有者のメンバーシップIDごとのラップ済み鍵。
type ActivateEncryptionKeyRequest struct {
	WrappedKeys map[string]string `json:"wrapped_keys"`
}

// EncryptionKeyResponse は暗号鍵のレスポンス形式。
type EncryptionKeyResponse struct {
	ID          string `json:"id"`
	OwnerUserID string `json:"owner_user_id"`
	Name        string `json:"name"`
	PublicKey   string `json:"public_key"`
	Fingerprint string `json:"fingerprint"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toEncryptionKeyResponse(k *domain.EncryptionKey) EncryptionKeyResponse {
	return EncryptionKeyResponse{
		ID:          k.ID,
		OwnerUserID: k.OwnerUserID,
		Name:        k.Name,
		PublicKey:   k.PublicKey,
		Fingerprint: k.Fingerprint,
		Active:      k.Active,
		CreatedAt:   formatTime(k.CreatedAt),
		UpdatedAt:   formatTime(k.UpdatedAt),
	}
}

func toEncryptionKeyResponses(keys []*domain.EncryptionKey) []EncryptionKeyResponse {
	resp := make([]EncryptionKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = toEncryptionKeyResponse(k)
	}
	return resp
}

// AddEncryptionKey は自分の暗号鍵を無効状態で登録する。
func (h *Handler) AddEncryptionKey(w http.ResponseWriter, r *http.Request) {
	var req AddEncryptionKeyRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	key, err := h.keys.AddKey(r.Context(), actor, req.PublicKey, req.Name)
	if err != nil {
		writeError(w, r, "ADD_ENCRYPTION_KEY", "", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ADD_ENCRYPTION_KEY", actor.UserID, key.ID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, toEncryptionKeyResponse(key))
}

// ListOwnEncryptionKeys は自分の暗号鍵を返す。
func (h *Handler) ListOwnEncryptionKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListOwnKeys(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, "LIST_ENCRYPTION_KEYS", "", err)
		return
	}
	httputil.JSON(w, http.StatusOK, toEncryptionKeyResponses(keys))
}

// ListInactiveEncryptionKeys は有効化待ちの暗号鍵を返す。
func (h *Handler) ListInactiveEncryptionKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListInactiveKeys(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, "LIST_INACTIVE_ENCRYPTION_KEYS", "", err)
		return
	}
	httputil.JSON(w, http.StatusOK, toEncryptionKeyResponses(keys))
}

// ActivateEncryptionKey は暗号鍵を有効化し、所有者の全メンバーシップにラップ済み鍵を配る。
func (h *Handler) ActivateEncryptionKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuidParam(r, "key_id")
	if err != nil {
		writeError(w, r, "ACTIVATE_ENCRYPTION_KEY", "", err)
		return
	}
	var req ActivateEncryptionKeyRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	key, err := h.keys.ActivateKey(r.Context(), actor, keyID, domain.WrappedKeysByMembership(req.WrappedKeys))
	if err != nil {
		writeError(w, r, "ACTIVATE_ENCRYPTION_KEY", keyID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ACTIVATE_ENCRYPTION_KEY", actor.UserID, key.ID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toEncryptionKeyResponse(key))
}

// RemoveEncryptionKey は暗号鍵とそのラップ済み鍵を削除する。
func (h *Handler) RemoveEncryptionKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuidParam(r, "key_id")
	if err != nil {
		writeError(w, r, "REMOVE_ENCRYPTION_KEY", "", err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	if err := h.keys.RemoveKey(r.Context(), actor, keyID); err != nil {
		writeError(w, r, "REMOVE_ENCRYPTION_KEY", keyID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REMOVE_ENCRYPTION_KEY", actor.UserID, keyID, middleware.AuditSuccess)
	w.WriteHeader(http.StatusNoContent)
}
