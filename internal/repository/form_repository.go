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

// FormModel はgorm用のモデル定義。
type FormModel struct {
	ID            string    `gorm:"size:36;primaryKey"`
	Name          string    `gorm:"size:100;not null"`
	Description   string    `gorm:"not null"`
	RenderingCode string    `gorm:"not null"`
	Active        bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (FormModel) TableName() string {
	return "forms"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *FormModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// FormTeamModel はフォームと受信チームの対応を表す。
type FormTeamModel struct {
	FormID string `gorm:"size:36;primaryKey"`
	TeamID string `gorm:"size:36;primaryKey;index:idx_form_teams_team"`
}

// TableName はテーブル名を返す。
func (FormTeamModel) TableName() string {
	return "form_teams"
}

func (m *FormModel) toDomain(teamIDs []string) *domain.Form {
	return &domain.Form{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		RenderingCode: m.RenderingCode,
		Active:        m.Active,
		TeamIDs:       teamIDs,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FormRepository はフォームのデータアクセスを提供する。
type FormRepository struct {
	db *gorm.DB
}

// NewFormRepository は新しいFormRepositoryを生成する。
func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

// Create は新しいフォームと受信チームを保存する。
func (r *FormRepository) Create(ctx context.Context, form *domain.Form) error {
	model := &FormModel{
		ID:            form.ID,
		Name:          form.Name,
		Description:   form.Description,
		RenderingCode: form.RenderingCode,
		Active:        form.Active,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create form",
			"operation", "create_form",
			"error", err,
		)
		return err
	}
	form.ID = model.ID
	form.CreatedAt = model.CreatedAt
	form.UpdatedAt = model.UpdatedAt
	return r.ReplaceTeams(ctx, form.ID, form.TeamIDs)
}

// FindByID は指定IDのフォームを取得する。存在しない場合は nil を返す。
func (r *FormRepository) FindByID(ctx context.Context, id string) (*domain.Form, error) {
	var model FormModel
	err := conn(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find form",
			"operation", "find_form",
			"id", id,
			"error", err,
		)
		return nil, err
	}

	teamIDs, err := r.findTeamIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.toDomain(teamIDs), nil
}

func (r *FormRepository) findTeamIDs(ctx context.Context, formID string) ([]string, error) {
	teamIDs := []string{}
	err := conn(ctx, r.db).
		Model(&FormTeamModel{}).
		Where("form_id = ?", formID).
		Order("team_id ASC").
		Pluck("team_id", &teamIDs).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find form teams",
			"operation", "find_form_team_ids",
			"form_id", formID,
			"error", err,
		)
		return nil, err
	}
	return teamIDs, nil
}

// Update はフォームの名前・説明・有効フラグを更新する。
func (r *FormRepository) Update(ctx context.Context, form *domain.Form) error {
	err := conn(ctx, r.db).
		Model(&FormModel{}).
		Where("id = ?", form.ID).
		Updates(map[string]any{
			"name":        form.Name,
			"description": form.Description,
			"active":      form.Active,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update form",
			"operation", "update_form",
			"id", form.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// ReplaceTeams はフォームの受信チームを置き換える。
func (r *FormRepository) ReplaceTeams(ctx context.Context, formID string, teamIDs []string) error {
	c := conn(ctx, r.db)
	if err := c.Where("form_id = ?", formID).Delete(&FormTeamModel{}).Error; err != nil {
		slog.ErrorContext(ctx, "failed to clear form teams",
			"operation", "replace_form_teams",
			"form_id", formID,
			"error", err,
		)
		return err
	}
	if len(teamIDs) == 0 {
		return nil
	}

	rows := make([]FormTeamModel, 0, len(teamIDs))
	seen := make(map[string]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, FormTeamModel{FormID: formID, TeamID: id})
	}
	if err := c.Create(&rows).Error; err != nil {
		slog.ErrorContext(ctx, "failed to insert form teams",
			"operation", "replace_form_teams",
			"form_id", formID,
			"error", err,
		)
		return err
	}
	return nil
}
