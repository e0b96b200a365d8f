package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
	"github.com/formularium/formularium-backend/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	service := usecase.NewMigrationService(repository.NewMigrationRepository(db), repository.NewTxManager(db), migrations.FS)
	status, err := service.GetMigrationStatus(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, status)

	assert.Equal(t, "001", status[0].Version)
	assert.Equal(t, "initial_schema", status[0].Name)
	for _, m := range status {
		assert.Equal(t, domain.MigrationStatusPending, m.Status)
	}
}
