// Package main は運用向けCLIツールのエントリポイント。
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/formularium/formularium-backend/config"
	"github.com/formularium/formularium-backend/internal/infra"
)

const version = "1.0.0"

var (
	output  string
	timeout time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd はサブコマンドを登録したルートコマンドを生成する。
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "formctl",
		Short:         "Formularium operations CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 既存の環境変数は上書きしない
			_ = godotenv.Load()
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Command timeout")

	// サブコマンド登録
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(signingKeyCmd())
	rootCmd.AddCommand(secretCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "formctl version %s\n", version)
		},
	}
}

// loadConfig は設定を読み込み、ログを標準エラーに出す。
func loadConfig() *config.Config {
	cfg := config.Load()
	slog.SetDefault(infra.NewLogger(os.Stderr, cfg))
	return cfg
}

// openDB は DATABASE_URL のデータベースに接続する。
func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
