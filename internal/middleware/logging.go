// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// 監査ログの結果
const (
	AuditSuccess = "SUCCESS"
	AuditFailed  = "FAILED"
	AuditDenied  = "DENIED"
)

// WriteAuditLog は信頼情報を変更・参照する操作の監査ログを出力する。
// actor は操作者のユーザーID、subject は操作対象のIDで、秘密情報は含めない。
func WriteAuditLog(ctx context.Context, operation, actor, subject, result string) {
	slog.InfoContext(ctx, "audit",
		"operation", operation,
		"actor", actor,
		"subject", subject,
		"result", result,
		"request_id", chimiddleware.GetReqID(ctx),
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}

// RequestLog はリクエストごとにアクセスログを出力する。
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.Log(r.Context(), level, "http request",
				"operation", "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
