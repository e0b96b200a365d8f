package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/formularium/formularium-backend/internal/middleware"
)

// RouterConfig はルーターの組み立てに使う設定。
type RouterConfig struct {
	Auth          *middleware.Authenticator
	SubmitLimiter *middleware.RateLimiter
	Timeout       time.Duration
	Metrics       http.Handler
	Ready         ReadyFunc
	Tracing       bool
}

// NewRouter はルーターを生成する。
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/livez", Livez)
	r.Get("/readyz", Readyz(cfg.Ready))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Timeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.Timeout))
		}

		authed := cfg.Auth.Require

		// 署名鍵の取得と検証は認証不要
		r.Get("/signing-key", h.GetSigningKey)
		r.Post("/signing-key/verify", h.VerifySubmission)

		r.Route("/forms", func(r chi.Router) {
			r.With(authed).Post("/", h.CreateForm)
			r.Route("/{form_id}", func(r chi.Router) {
				// 送信者向け(認証不要)
				r.Get("/recipient-keys", h.GetRecipientKeys)
				r.With(cfg.SubmitLimiter.Limit).Post("/submissions", h.SubmitForm)

				r.Group(func(r chi.Router) {
					r.Use(authed)
					r.Get("/", h.GetForm)
					r.Patch("/", h.UpdateForm)
					r.Put("/teams", h.SetFormTeams)
					r.Get("/submissions", h.ListSubmissions)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authed)

			r.Route("/encryption-keys", func(r chi.Router) {
				r.Post("/", h.AddEncryptionKey)
				r.Get("/", h.ListOwnEncryptionKeys)
				r.Get("/inactive", h.ListInactiveEncryptionKeys)
				r.Post("/{key_id}/activate", h.ActivateEncryptionKey)
				r.Delete("/{key_id}", h.RemoveEncryptionKey)
			})

			r.Route("/teams", func(r chi.Router) {
				r.Post("/", h.CreateTeam)
				r.Get("/", h.ListTeams)
				r.Route("/{team_id}", func(r chi.Router) {
					r.Get("/", h.GetTeam)
					r.Get("/members", h.ListMembers)
					r.Post("/members", h.AddMember)
					r.Patch("/members/{user_id}", h.UpdateMember)
					r.Delete("/members/{user_id}", h.RemoveMember)
					r.Get("/access-keys", h.MyAccessKeys)
				})
			})
		})
	})

	if !cfg.Tracing {
		return r
	}
	return otelhttp.NewHandler(r, "formularium-backend",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/livez" && req.URL.Path != "/readyz" && req.URL.Path != "/metrics"
		}),
	)
}
