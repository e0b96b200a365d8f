package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/formularium/formularium-backend/config"
	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
	"github.com/formularium/formularium-backend/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: "Manage database migrations. Files are read from MIGRATIONS_DIR when it exists, " +
			"otherwise the migrations embedded in the binary are used.",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

// migrationFiles は MIGRATIONS_DIR があればそれを、なければ埋め込みのファイルを返す。
func migrationFiles(cfg *config.Config) fs.FS {
	if info, err := os.Stat(cfg.MigrationsDir); err == nil && info.IsDir() {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func newMigrationService(cfg *config.Config) (*usecase.MigrationService, func(), error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	service := usecase.NewMigrationService(
		repository.NewMigrationRepository(db),
		repository.NewTxManager(db),
		migrationFiles(cfg),
	)
	return service, func() { closeDB(db) }, nil
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			service, closeFn, err := newMigrationService(loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			appliedCount, err := service.ApplyMigrations(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if appliedCount == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			service, closeFn, err := newMigrationService(loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			migrations, err := service.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			if output == "json" {
				return printJSON(cmd, migrations)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, m := range migrations {
				appliedAt := "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				status := "pending"
				if m.Status == domain.MigrationStatusApplied {
					status = "applied"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Version, m.Name, status, appliedAt)
			}
			return w.Flush()
		},
	}
}
