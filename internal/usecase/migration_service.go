package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/formularium/formularium-backend/internal/domain"
)

// MigrationRepository はスキーマ変更の履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureTable(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	RecordMigration(ctx context.Context, version, checksum string) error
	ExecSQL(ctx context.Context, sql string) error
}

// MigrationService はSQLファイルによるスキーマ変更を適用する。
type MigrationService struct {
	repo  MigrationRepository
	tx    TxManager
	files fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
// files の直下にある {version}_{name}.sql を対象にする。
func NewMigrationService(repo MigrationRepository, tx TxManager, files fs.FS) *MigrationService {
	return &MigrationService{
		repo:  repo,
		tx:    tx,
		files: files,
	}
}

type migrationFile struct {
	*domain.Migration
	sql string
}

func (s *MigrationService) scanMigrationFiles() ([]*migrationFile, error) {
	entries, err := fs.ReadDir(s.files, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", domain.ErrMigrationFileNotFound, err)
		}
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migrations []*migrationFile
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: %s and %s share version %s", domain.ErrInvalidMigrationFile, prev, entry.Name(), version)
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(s.files, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(body)
		migrations = append(migrations, &migrationFile{
			Migration: &domain.Migration{
				Version:  version,
				Name:     name,
				FileName: entry.Name(),
				Checksum: hex.EncodeToString(sum[:]),
				Status:   domain.MigrationStatusPending,
			},
			sql: string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_initial_schema.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return parts[0], parts[1], nil
}

// ApplyMigrations は未適用のスキーマ変更を番号順に実行し、適用数を返す。
// 適用済みファイルの内容が変わっている場合は何も実行しない。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	migrations, err := s.status(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.Status == domain.MigrationStatusApplied {
			continue
		}
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, stmt := range splitStatements(m.sql) {
				if err := s.repo.ExecSQL(ctx, stmt); err != nil {
					return err
				}
			}
			return s.repo.RecordMigration(ctx, m.Version, m.Checksum)
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", m.Version,
				"error", err,
			)
			return applied, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, m.Version, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"operation", "apply_migrations",
			"version", m.Version,
			"name", m.Name,
		)
		applied++
	}
	return applied, nil
}

// GetMigrationStatus は各ファイルの適用状況を返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	migrations, err := s.status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Migration, len(migrations))
	for i, m := range migrations {
		out[i] = m.Migration
	}
	return out, nil
}

func (s *MigrationService) status(ctx context.Context) ([]*migrationFile, error) {
	migrations, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}
	if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensuring schema_migrations: %w", err)
	}
	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching applied migrations: %w", err)
	}

	appliedMap := make(map[string]*domain.Migration, len(applied))
	for _, m := range applied {
		appliedMap[m.Version] = m
	}
	for _, m := range migrations {
		a, ok := appliedMap[m.Version]
		if !ok {
			continue
		}
		if a.Checksum != "" && a.Checksum != m.Checksum {
			return nil, fmt.Errorf("%w: %s was modified after being applied", domain.ErrInvalidMigrationFile, m.FileName)
		}
		m.Status = domain.MigrationStatusApplied
		m.AppliedAt = a.AppliedAt
	}
	return migrations, nil
}

// splitStatements はSQLを文単位に分割する。行末の ; を区切りとし、コメント行は除く。
// 文字列リテラル中の ; は考慮しない。
func splitStatements(sql string) []string {
	var stmts []string
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(b.String()))
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
