package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formularium/formularium-backend/internal/domain"
)

// TeamModel はgorm用のモデル定義。
type TeamModel struct {
	ID        string    `gorm:"size:36;primaryKey"`
	Name      string    `gorm:"size:100;not null"`
	Slug      string    `gorm:"size:120;not null;index:idx_teams_slug"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (TeamModel) TableName() string {
	return "teams"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TeamModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *TeamModel) toDomain() *domain.Team {
	return &domain.Team{
		ID:        m.ID,
		Name:      m.Name,
		Slug:      m.Slug,
		CreatedAt: m.CreatedAt,
	}
}

// TeamRepository はチームのデータアクセスを提供する。
type TeamRepository struct {
	db *gorm.DB
}

// NewTeamRepository は新しいTeamRepositoryを生成する。
func NewTeamRepository(db *gorm.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create は新しいチームを保存する。
func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	model := &TeamModel{
		ID:   team.ID,
		Name: team.Name,
		Slug: team.Slug,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create team",
			"operation", "create_team",
			"slug", team.Slug,
			"error", err,
		)
		return err
	}
	team.ID = model.ID
	team.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は指定IDのチームを取得する。存在しない場合は nil を返す。
func (r *TeamRepository) FindByID(ctx context.Context, id string) (*domain.Team, error) {
	return r.findByID(ctx, conn(ctx, r.db), id, "find_team")
}

// LockByID は指定IDのチームを行ロックして取得する。
// 同一チームのメンバー変更をトランザクション単位で直列化するために使う。
func (r *TeamRepository) LockByID(ctx context.Context, id string) (*domain.Team, error) {
	return r.findByID(ctx, forUpdate(conn(ctx, r.db)), id, "lock_team")
}

func (r *TeamRepository) findByID(ctx context.Context, db *gorm.DB, id, operation string) (*domain.Team, error) {
	var model TeamModel
	err := db.Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find team",
			"operation", operation,
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByUserID は指定ユーザーが所属するチームを取得する。
func (r *TeamRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Team, error) {
	var models []TeamModel
	err := conn(ctx, r.db).
		Joins("JOIN team_memberships ON team_memberships.team_id = teams.id").
		Where("team_memberships.user_id = ?", userID).
		Order("teams.created_at ASC").
		Order("teams.id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find teams by user",
			"operation", "find_teams_by_user_id",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}

	teams := make([]*domain.Team, len(models))
	for i := range models {
		teams[i] = models[i].toDomain()
	}
	return teams, nil
}

// CountByIDs は指定IDのうち存在するチームの数を返す。
func (r *TeamRepository) CountByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := conn(ctx, r.db).
		Model(&TeamModel{}).
		Where("id IN ?", ids).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count teams",
			"operation", "count_teams_by_ids",
			"error", err,
		)
		return 0, err
	}
	return count, nil
}
