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

// TeamMembershipModel はgorm用のモデル定義。
type TeamMembershipModel struct {
	ID        string    `gorm:"size:36;primaryKey"`
	TeamID    string    `gorm:"size:36;not null;uniqueIndex:uk_team_memberships_team_user;index:idx_team_memberships_team_role"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:uk_team_memberships_team_user;index:idx_team_memberships_user"`
	Role      string    `gorm:"size:16;not null;index:idx_team_memberships_team_role"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (TeamMembershipModel) TableName() string {
	return "team_memberships"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TeamMembershipModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *TeamMembershipModel) toDomain() *domain.TeamMembership {
	return &domain.TeamMembership{
		ID:        m.ID,
		TeamID:    m.TeamID,
		UserID:    m.UserID,
		Role:      domain.TeamRole(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func membershipsToDomain(models []TeamMembershipModel) []*domain.TeamMembership {
	memberships := make([]*domain.TeamMembership, len(models))
	for i := range models {
		memberships[i] = models[i].toDomain()
	}
	return memberships
}

// MembershipRepository はチームメンバーシップのデータアクセスを提供する。
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository は新しいMembershipRepositoryを生成する。
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create は新しいメンバーシップを保存する。
func (r *MembershipRepository) Create(ctx context.Context, m *domain.TeamMembership) error {
	model := &TeamMembershipModel{
		ID:     m.ID,
		TeamID: m.TeamID,
		UserID: m.UserID,
		Role:   string(m.Role),
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create membership",
			"operation", "create_membership",
			"team_id", m.TeamID,
			"user_id", m.UserID,
			"error", err,
		)
		return err
	}
	m.ID = model.ID
	m.CreatedAt = model.CreatedAt
	return nil
}

// FindByTeamAndUser は指定チーム・ユーザーのメンバーシップを取得する。存在しない場合は nil を返す。
func (r *MembershipRepository) FindByTeamAndUser(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	var model TeamMembershipModel
	err := conn(ctx, r.db).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find membership",
			"operation", "find_membership_by_team_and_user",
			"team_id", teamID,
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByTeam は指定チームの全メンバーシップを取得する。
func (r *MembershipRepository) FindByTeam(ctx context.Context, teamID string) ([]*domain.TeamMembership, error) {
	var models []TeamMembershipModel
	err := conn(ctx, r.db).
		Where("team_id = ?", teamID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find memberships by team",
			"operation", "find_memberships_by_team",
			"team_id", teamID,
			"error", err,
		)
		return nil, err
	}
	return membershipsToDomain(models), nil
}

// FindByUser は指定ユーザーの全メンバーシップを取得する。
func (r *MembershipRepository) FindByUser(ctx context.Context, userID string) ([]*domain.TeamMembership, error) {
	var models []TeamMembershipModel
	err := conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find memberships by user",
			"operation", "find_memberships_by_user",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}
	return membershipsToDomain(models), nil
}

// CountByTeam は指定チームのメンバー数を返す。
func (r *MembershipRepository) CountByTeam(ctx context.Context, teamID string) (int64, error) {
	return r.count(ctx, "count_memberships", "team_id = ?", teamID)
}

// CountByTeamAndRole は指定チーム・ロールのメンバー数を返す。
func (r *MembershipRepository) CountByTeamAndRole(ctx context.Context, teamID string, role domain.TeamRole) (int64, error) {
	return r.count(ctx, "count_memberships_by_role", "team_id = ? AND role = ?", teamID, string(role))
}

func (r *MembershipRepository) count(ctx context.Context, operation string, query string, args ...any) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&TeamMembershipModel{}).
		Where(query, args...).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count memberships",
			"operation", operation,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}

// UpdateRole は指定IDのメンバーシップのロールを更新する。
func (r *MembershipRepository) UpdateRole(ctx context.Context, id string, role domain.TeamRole) error {
	err := conn(ctx, r.db).
		Model(&TeamMembershipModel{}).
		Where("id = ?", id).
		Update("role", string(role)).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update membership role",
			"operation", "update_membership_role",
			"id", id,
			"role", role,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は指定IDのメンバーシップを削除する。
func (r *MembershipRepository) Delete(ctx context.Context, id string) error {
	err := conn(ctx, r.db).
		Where("id = ?", id).
		Delete(&TeamMembershipModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete membership",
			"operation", "delete_membership",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
