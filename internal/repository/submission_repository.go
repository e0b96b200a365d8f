package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formularium/formularium-backend/internal/domain"
)

// FormSubmissionModel はgorm用のモデル定義。
type FormSubmissionModel struct {
	ID             string    `gorm:"size:36;primaryKey"`
	FormID         string    `gorm:"size:36;not null;index:idx_form_submissions_form"`
	EncryptedData  string    `gorm:"not null"`
	Envelope       string    `gorm:"not null"`
	Signature      string    `gorm:"not null"`
	SignatureKeyID string    `gorm:"size:36;not null"`
	SubmittedAt    time.Time `gorm:"not null"`
}

// TableName はテーブル名を返す。
func (FormSubmissionModel) TableName() string {
	return "form_submissions"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *FormSubmissionModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *FormSubmissionModel) toDomain() *domain.FormSubmission {
	return &domain.FormSubmission{
		ID:             m.ID,
		FormID:         m.FormID,
		EncryptedData:  m.EncryptedData,
		Envelope:       m.Envelope,
		Signature:      m.Signature,
		SignatureKeyID: m.SignatureKeyID,
		SubmittedAt:    m.SubmittedAt,
	}
}

// SubmissionRepository は送信データのデータアクセスを提供する。追記のみ。
type SubmissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository は新しいSubmissionRepositoryを生成する。
func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create は署名済みの送信データを保存する。
func (r *SubmissionRepository) Create(ctx context.Context, s *domain.FormSubmission) error {
	model := &FormSubmissionModel{
		ID:             s.ID,
		FormID:         s.FormID,
		EncryptedData:  s.EncryptedData,
		Envelope:       s.Envelope,
		Signature:      s.Signature,
		SignatureKeyID: s.SignatureKeyID,
		SubmittedAt:    s.SubmittedAt,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create submission",
			"operation", "create_submission",
			"form_id", s.FormID,
			"error", err,
		)
		return err
	}
	s.ID = model.ID
	return nil
}

// FindByFormID は指定フォームの送信データを送信順に取得する。
func (r *SubmissionRepository) FindByFormID(ctx context.Context, formID string) ([]*domain.FormSubmission, error) {
	var models []FormSubmissionModel
	err := conn(ctx, r.db).
		Where("form_id = ?", formID).
		Order("submitted_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find submissions",
			"operation", "find_submissions_by_form",
			"form_id", formID,
			"error", err,
		)
		return nil, err
	}

	submissions := make([]*domain.FormSubmission, len(models))
	for i := range models {
		submissions[i] = models[i].toDomain()
	}
	return submissions, nil
}
