package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/formularium/formularium-backend/pkg/httputil"
)

// ReadyFunc は依存先(データベース等)が利用可能か確認する。
type ReadyFunc func(ctx context.Context) error

const readyTimeout = 2 * time.Second

// Livez はプロセスが動作していれば200を返す。
func Livez(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz は依存先の確認に成功すれば200、失敗すれば503を返す。
func Readyz(ready ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				slog.WarnContext(ctx, "readiness check failed",
					"operation", "readyz",
					"error", err,
				)
				httputil.Error(w, http.StatusServiceUnavailable, "NOT_READY", "service not ready")
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
