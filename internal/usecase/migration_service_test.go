package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"

	"gorm.io/gorm"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_create_users.sql":    {Data: []byte("CREATE TABLE users (id INT);")},
		"002_create_posts.sql":    {Data: []byte("CREATE TABLE posts (id INT);")},
		"003_create_comments.sql": {Data: []byte("CREATE TABLE comments (id INT);")},
		"README.md":               {Data: []byte("ignored")},
	}
}

func newMigrationService(t *testing.T, files fstest.MapFS) (*usecase.MigrationService, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	svc := usecase.NewMigrationService(repository.NewMigrationRepository(db), repository.NewTxManager(db), files)
	return svc, db
}

func tableExists(t *testing.T, db *gorm.DB, table string) bool {
	t.Helper()
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count).Error; err != nil {
		t.Fatalf("failed to check table %s: %v", table, err)
	}
	return count == 1
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	service, db := newMigrationService(t, testMigrations())

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied, got %d", count)
	}
	for _, table := range []string{"users", "posts", "comments"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}

	// 2回目は何も適用しない
	count, err = service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 migrations applied, got %d", count)
	}
}

func TestMigrationService_ApplyMigrations_Error(t *testing.T) {
	ctx := context.Background()
	files := testMigrations()
	files["004_invalid.sql"] = &fstest.MapFile{Data: []byte("INVALID SQL SYNTAX;")}
	service, _ := newMigrationService(t, files)

	count, err := service.ApplyMigrations(ctx)
	if !errors.Is(err, domain.ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied before the failure, got %d", count)
	}

	migrations, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if last := migrations[len(migrations)-1]; last.Status != domain.MigrationStatusPending {
		t.Errorf("failed migration should stay pending, got %s", last.Status)
	}
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	ctx := context.Background()
	files := fstest.MapFS{
		"001_create_users.sql": {Data: []byte("CREATE TABLE users (id INT);")},
	}
	service, _ := newMigrationService(t, files)
	if _, err := service.ApplyMigrations(ctx); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	// 後から追加されたファイルは未適用
	files["002_create_posts.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE posts (id INT);")}
	files["003_create_comments.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE comments (id INT);")}

	migrations, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	expectedStatuses := map[string]domain.MigrationStatus{
		"001": domain.MigrationStatusApplied,
		"002": domain.MigrationStatusPending,
		"003": domain.MigrationStatusPending,
	}
	for _, migration := range migrations {
		expected, ok := expectedStatuses[migration.Version]
		if !ok {
			t.Errorf("unexpected migration version: %s", migration.Version)
			continue
		}
		if migration.Status != expected {
			t.Errorf("migration %s: expected status %s, got %s", migration.Version, expected, migration.Status)
		}
		if expected == domain.MigrationStatusApplied && migration.AppliedAt == nil {
			t.Errorf("migration %s: applied_at is missing", migration.Version)
		}
	}
}

func TestMigrationService_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	files := fstest.MapFS{
		"001_create_users.sql": {Data: []byte("CREATE TABLE users (id INT);")},
	}
	service, _ := newMigrationService(t, files)
	if _, err := service.ApplyMigrations(ctx); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	files["001_create_users.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE users (id BIGINT);")}

	if _, err := service.ApplyMigrations(ctx); !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_InvalidFileName(t *testing.T) {
	files := fstest.MapFS{
		"initial.sql": {Data: []byte("SELECT 1;")},
	}
	service, _ := newMigrationService(t, files)

	if _, err := service.GetMigrationStatus(context.Background()); !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_MultipleStatements(t *testing.T) {
	files := fstest.MapFS{
		"001_initial_schema.sql": {Data: []byte(`-- widgets and gadgets
CREATE TABLE widgets (
  id INT
);

-- trailing comment
CREATE TABLE gadgets (id INT);
`)},
	}
	service, db := newMigrationService(t, files)

	if _, err := service.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	for _, table := range []string{"widgets", "gadgets"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}
}

func TestMigrationService_MissingDirectory(t *testing.T) {
	db := openTestDB(t)
	files := os.DirFS(filepath.Join(t.TempDir(), "missing"))
	service := usecase.NewMigrationService(repository.NewMigrationRepository(db), repository.NewTxManager(db), files)

	if _, err := service.GetMigrationStatus(context.Background()); !errors.Is(err, domain.ErrMigrationFileNotFound) {
		t.Fatalf("expected ErrMigrationFileNotFound, got %v", err)
	}
}

