package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formularium/formularium-backend/internal/domain"
)

// TeamMembershipAccessKeyModel はgorm用のモデル定義。
type TeamMembershipAccessKeyModel struct {
	ID              string    `gorm:"size:36;primaryKey"`
	MembershipID    string    `gorm:"size:36;not null;uniqueIndex:uk_access_keys_membership_key"`
	EncryptionKeyID string    `gorm:"size:36;not null;uniqueIndex:uk_access_keys_membership_key;index:idx_access_keys_encryption_key"`
	WrappedKey      string    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (TeamMembershipAccessKeyModel) TableName() string {
	return "team_membership_access_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *TeamMembershipAccessKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *TeamMembershipAccessKeyModel) toDomain() *domain.TeamMembershipAccessKey {
	return &domain.TeamMembershipAccessKey{
		ID:              m.ID,
		MembershipID:    m.MembershipID,
		EncryptionKeyID: m.EncryptionKeyID,
		WrappedKey:      m.WrappedKey,
		CreatedAt:       m.CreatedAt,
	}
}

// AccessKeyRepository はラップ済み鍵のデータアクセスを提供する。
type AccessKeyRepository struct {
	db *gorm.DB
}

// NewAccessKeyRepository は新しいAccessKeyRepositoryを生成する。
func NewAccessKeyRepository(db *gorm.DB) *AccessKeyRepository {
	return &AccessKeyRepository{db: db}
}

// Create は新しいラップ済み鍵を保存する。
func (r *AccessKeyRepository) Create(ctx context.Context, key *domain.TeamMembershipAccessKey) error {
	model := &TeamMembershipAccessKeyModel{
		ID:              key.ID,
		MembershipID:    key.MembershipID,
		EncryptionKeyID: key.EncryptionKeyID,
		WrappedKey:      key.WrappedKey,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create access key",
			"operation", "create_access_key",
			"membership_id", key.MembershipID,
			"encryption_key_id", key.EncryptionKeyID,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	return nil
}

// FindByMembership は指定メンバーシップのラップ済み鍵を取得する。
func (r *AccessKeyRepository) FindByMembership(ctx context.Context, membershipID string) ([]*domain.TeamMembershipAccessKey, error) {
	var models []TeamMembershipAccessKeyModel
	err := conn(ctx, r.db).
		Where("membership_id = ?", membershipID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find access keys",
			"operation", "find_access_keys_by_membership",
			"membership_id", membershipID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.TeamMembershipAccessKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// DeleteByMembership は指定メンバーシップのラップ済み鍵を全て削除する。
func (r *AccessKeyRepository) DeleteByMembership(ctx context.Context, membershipID string) (int64, error) {
	return r.delete(ctx, "delete_access_keys_by_membership", "membership_id = ?", membershipID)
}

// DeleteByEncryptionKey は指定暗号鍵のラップ済み鍵を全て削除する。
func (r *AccessKeyRepository) DeleteByEncryptionKey(ctx context.Context, encryptionKeyID string) (int64, error) {
	return r.delete(ctx, "delete_access_keys_by_encryption_key", "encryption_key_id = ?", encryptionKeyID)
}

func (r *AccessKeyRepository) delete(ctx context.Context, operation, query string, arg string) (int64, error) {
	res := conn(ctx, r.db).
		Where(query, arg).
		Delete(&TeamMembershipAccessKeyModel{})
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to delete access keys",
			"operation", operation,
			"error", res.Error,
		)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
