// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/formularium/formularium-backend/config"
	"github.com/formularium/formularium-backend/internal/handler"
	"github.com/formularium/formularium-backend/internal/infra"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
)

// version はビルド時に -ldflags で上書きする。
var version = "dev"

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	shutdownTracer, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseAutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		slog.Warn("schema created from models; use formctl migrate in production")
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("failed to get sql.DB", "error", err)
		os.Exit(1)
	}

	// 署名鍵を保護する秘密情報
	secrets, kmsClient, err := infra.NewSecretProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to init secret provider", "error", err)
		os.Exit(1)
	}
	if kmsClient != nil {
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
	}
	engine := infra.NewPGPEngine(secrets, infra.KeyGenConfig{
		Algorithm: cfg.SigningKeyAlgorithm,
		RSABits:   cfg.SigningKeyRSABits,
		Lifetime:  cfg.SigningKeyLifetime,
		Name:      cfg.SigningKeyIdentityName,
		Email:     cfg.SigningKeyIdentityEmail,
	})

	// メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// DI
	tx := repository.NewTxManager(db)
	formRepo := repository.NewFormRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	accessKeyRepo := repository.NewAccessKeyRepository(db)
	encryptionKeyRepo := repository.NewEncryptionKeyRepository(db)

	signing := usecase.NewSignatureKeyService(repository.NewSignatureKeyRepository(db), tx, engine, engine, metrics)
	wrapping := usecase.NewKeyWrappingService(encryptionKeyRepo, membershipRepo, accessKeyRepo, engine, tx)
	members := usecase.NewMembershipService(teamRepo, membershipRepo, encryptionKeyRepo, accessKeyRepo, wrapping, tx)
	h := handler.NewHandler(handler.Services{
		Signing:     signing,
		Submissions: usecase.NewSubmissionService(formRepo, encryptionKeyRepo, repository.NewSubmissionRepository(db), membershipRepo, signing, engine, metrics),
		Forms:       usecase.NewFormService(formRepo, teamRepo, tx),
		Keys:        usecase.NewEncryptionKeyService(encryptionKeyRepo, accessKeyRepo, engine, wrapping, tx),
		Wrapping:    wrapping,
		Teams:       usecase.NewTeamService(teamRepo, members, tx),
		Members:     members,
	})

	if _, err := signing.GetActiveSigningKey(ctx); err != nil {
		slog.Warn("no active signing key; submissions are rejected until `formctl signing-key rotate` is run",
			"operation", "startup",
			"error", err,
		)
	}

	router := handler.NewRouter(h, handler.RouterConfig{
		Auth:          middleware.NewAuthenticator([]byte(cfg.JWTSecret)),
		SubmitLimiter: middleware.NewRateLimiter(cfg.SubmitRateLimitRPS, cfg.SubmitRateLimitBurst, 10*time.Minute),
		Timeout:       cfg.RequestTimeout,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:         sqlDB.PingContext,
		Tracing:       cfg.OtelEnabled,
	})

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server stopped")
}
