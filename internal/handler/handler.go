// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/internal/usecase"
	"github.com/formularium/formularium-backend/pkg/httputil"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

// Services はハンドラが使うユースケースの一覧。
type Services struct {
	Signing     *usecase.SignatureKeyService
	Submissions *usecase.SubmissionService
	Forms       *usecase.FormService
	Keys        *usecase.EncryptionKeyService
	Wrapping    *usecase.KeyWrappingService
	Teams       *usecase.TeamService
	Members     *usecase.MembershipService
}

// Handler はHTTPハンドラを提供する。
type Handler struct {
	signing     *usecase.SignatureKeyService
	submissions *usecase.SubmissionService
	forms       *usecase.FormService
	keys        *usecase.EncryptionKeyService
	wrapping    *usecase.KeyWrappingService
	teams       *usecase.TeamService
	members     *usecase.MembershipService
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(s Services) *Handler {
	return &Handler{
		signing:     s.Signing,
		submissions: s.Submissions,
		forms:       s.Forms,
		keys:        s.Keys,
		wrapping:    s.Wrapping,
		teams:       s.Teams,
		members:     s.Members,
	}
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// 個別のエラーを先に、種別を後に並べる
var errorMappings = []errorMapping{
	{domain.ErrFormUnavailable, http.StatusNotFound, "FORM_UNAVAILABLE"},
	{domain.ErrTeamNotFound, http.StatusNotFound, "TEAM_NOT_FOUND"},
	{domain.ErrNotAMember, http.StatusNotFound, "NOT_A_MEMBER"},
	{domain.ErrEncryptionKeyNotFound, http.StatusNotFound, "ENCRYPTION_KEY_NOT_FOUND"},
	{domain.ErrLastAdmin, http.StatusConflict, "LAST_ADMIN"},
	{domain.ErrAlreadyActive, http.StatusConflict, "ALREADY_ACTIVE"},
	{domain.ErrMissingKeyWrap, http.StatusConflict, "MISSING_KEY_WRAP"},
	{domain.ErrIncompleteRewrap, http.StatusConflict, "INCOMPLETE_REWRAP"},
	{domain.ErrAlreadyMember, http.StatusConflict, "ALREADY_MEMBER"},
	{domain.ErrNoActiveSigningKey, http.StatusServiceUnavailable, "NO_ACTIVE_SIGNING_KEY"},
	{domain.ErrKeyUnlockFailed, http.StatusServiceUnavailable, "SIGNING_UNAVAILABLE"},
	{domain.ErrInvalidPublicKey, http.StatusBadRequest, "INVALID_PUBLIC_KEY"},
	{domain.ErrInvalidWrappedKey, http.StatusBadRequest, "INVALID_WRAPPED_KEY"},
	{domain.ErrUnexpectedKeyWrap, http.StatusBadRequest, "UNEXPECTED_KEY_WRAP"},
	{domain.ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE"},
	{domain.ErrInvalidName, http.StatusBadRequest, "INVALID_NAME"},
	{domain.ErrInvalidID, http.StatusBadRequest, "INVALID_ID"},
	{domain.ErrEmptyContent, http.StatusBadRequest, "EMPTY_CONTENT"},
	{domain.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},

	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{domain.ErrInvariantViolation, http.StatusConflict, "INVARIANT_VIOLATION"},
	{domain.ErrCryptoUnavailable, http.StatusServiceUnavailable, "CRYPTO_UNAVAILABLE"},
	{domain.ErrMalformedInput, http.StatusBadRequest, "MALFORMED_INPUT"},
}

// writeError はエラー種別に応じたレスポンスを返し、監査ログを出力する。
// 暗号処理の詳細はレスポンスに含めない。
func writeError(w http.ResponseWriter, r *http.Request, operation, subject string, err error) {
	ctx := r.Context()
	actor := middleware.PrincipalFrom(ctx).UserID

	if errors.Is(err, context.DeadlineExceeded) {
		middleware.WriteAuditLog(ctx, operation, actor, subject, middleware.AuditFailed)
		httputil.Error(w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
		return
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		result := middleware.AuditFailed
		if m.status == http.StatusForbidden {
			result = middleware.AuditDenied
		}
		middleware.WriteAuditLog(ctx, operation, actor, subject, result)

		message := m.err.Error()
		if m.status == http.StatusBadRequest || m.status == http.StatusForbidden {
			message = err.Error()
		}
		httputil.Error(w, m.status, m.code, message)
		return
	}

	slog.ErrorContext(ctx, "request failed",
		"operation", operation,
		"subject", subject,
		"error", err,
	)
	middleware.WriteAuditLog(ctx, operation, actor, subject, middleware.AuditFailed)
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httputil.Error(w, http.StatusBadRequest, "MALFORMED_INPUT", err.Error())
}

// uuidParam はパスパラメータのUUIDを検証して返す。
func uuidParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if _, err := uuid.Parse(v); err != nil {
		return "", domain.ErrInvalidID
	}
	return v, nil
}

func validateUserID(userID string) error {
	if userID == "" || len(userID) > 64 || !userIDRegex.MatchString(userID) {
		return domain.ErrInvalidID
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
