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

// EncryptionKeyModel はgorm用のモデル定義。
type EncryptionKeyModel struct {
	ID          string    `gorm:"size:36;primaryKey"`
	OwnerUserID string    `gorm:"size:64;not null;index:idx_encryption_keys_owner_active"`
	Name        string    `gorm:"size:100;not null"`
	PublicKey   string    `gorm:"not null"`
	Fingerprint string    `gorm:"size:64;not null;index:idx_encryption_keys_fingerprint"`
	Active      bool      `gorm:"not null;index:idx_encryption_keys_owner_active"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (EncryptionKeyModel) TableName() string {
	return "encryption_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (e *EncryptionKeyModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (e *EncryptionKeyModel) toDomain() *domain.EncryptionKey {
	return &domain.EncryptionKey{
		ID:          e.ID,
		OwnerUserID: e.OwnerUserID,
		Name:        e.Name,
		PublicKey:   e.PublicKey,
		Fingerprint: e.Fingerprint,
		Active:      e.Active,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func encryptionKeysToDomain(models []EncryptionKeyModel) []*domain.EncryptionKey {
	keys := make([]*domain.EncryptionKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys
}

// EncryptionKeyRepository は暗号鍵のデータアクセスを提供する。
type EncryptionKeyRepository struct {
	db *gorm.DB
}

// NewEncryptionKeyRepository は新しいEncryptionKeyRepositoryを生成する。
func NewEncryptionKeyRepository(db *gorm.DB) *EncryptionKeyRepository {
	return &EncryptionKeyRepository{db: db}
}

// Create は新しい暗号鍵を保存する。
func (r *EncryptionKeyRepository) Create(ctx context.Context, key *domain.EncryptionKey) error {
	model := &EncryptionKeyModel{
		ID:          key.ID,
		OwnerUserID: key.OwnerUserID,
		Name:        key.Name,
		PublicKey:   key.PublicKey,
		Fingerprint: key.Fingerprint,
		Active:      key.Active,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create encryption key",
			"operation", "create_encryption_key",
			"owner_user_id", key.OwnerUserID,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定IDの暗号鍵を取得する。存在しない場合は nil を返す。
func (r *EncryptionKeyRepository) FindByID(ctx context.Context, id string) (*domain.EncryptionKey, error) {
	return r.findByID(ctx, conn(ctx, r.db), id, "find_encryption_key")
}

// LockByID は指定IDの暗号鍵を行ロックして取得する。トランザクション内で使う。
func (r *EncryptionKeyRepository) LockByID(ctx context.Context, id string) (*domain.EncryptionKey, error) {
	return r.findByID(ctx, forUpdate(conn(ctx, r.db)), id, "lock_encryption_key")
}

func (r *EncryptionKeyRepository) findByID(ctx context.Context, db *gorm.DB, id, operation string) (*domain.EncryptionKey, error) {
	var model EncryptionKeyModel
	err := db.Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find encryption key",
			"operation", operation,
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByOwner は指定ユーザーの全ての暗号鍵を作成順に取得する。
func (r *EncryptionKeyRepository) FindByOwner(ctx context.Context, ownerUserID string) ([]*domain.EncryptionKey, error) {
	var models []EncryptionKeyModel
	err := conn(ctx, r.db).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find encryption keys by owner",
			"operation", "find_encryption_keys_by_owner",
			"owner_user_id", ownerUserID,
			"error", err,
		)
		return nil, err
	}
	return encryptionKeysToDomain(models), nil
}

// LockByOwner は指定ユーザーの暗号鍵を有効・無効を問わず全て行ロックして取得する。
// 同じユーザーの鍵の有効化と直列化するためにトランザクション内で使う。
func (r *EncryptionKeyRepository) LockByOwner(ctx context.Context, ownerUserID string) ([]*domain.EncryptionKey, error) {
	var models []EncryptionKeyModel
	err := forUpdate(conn(ctx, r.db)).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to lock encryption keys by owner",
			"operation", "lock_encryption_keys_by_owner",
			"owner_user_id", ownerUserID,
			"error", err,
		)
		return nil, err
	}
	return encryptionKeysToDomain(models), nil
}

// FindInactive は有効化待ちの暗号鍵を取得する。
func (r *EncryptionKeyRepository) FindInactive(ctx context.Context) ([]*domain.EncryptionKey, error) {
	var models []EncryptionKeyModel
	err := conn(ctx, r.db).
		Where("active = ?", false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find inactive encryption keys",
			"operation", "find_inactive_encryption_keys",
			"error", err,
		)
		return nil, err
	}
	return encryptionKeysToDomain(models), nil
}

// FindActiveByTeamIDs は指定チームのいずれかに所属するユーザーの有効な暗号鍵を取得する。
func (r *EncryptionKeyRepository) FindActiveByTeamIDs(ctx context.Context, teamIDs []string) ([]*domain.EncryptionKey, error) {
	if len(teamIDs) == 0 {
		return []*domain.EncryptionKey{}, nil
	}

	c := conn(ctx, r.db)
	members := c.Session(&gorm.Session{NewDB: true}).
		Model(&TeamMembershipModel{}).
		Select("user_id").
		Where("team_id IN ?", teamIDs)

	var models []EncryptionKeyModel
	err := c.
		Where("active = ?", true).
		Where("owner_user_id IN (?)", members).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find recipient keys",
			"operation", "find_active_encryption_keys_by_team_ids",
			"team_ids", teamIDs,
			"error", err,
		)
		return nil, err
	}
	return encryptionKeysToDomain(models), nil
}

// UpdateActive は指定IDの暗号鍵の有効フラグを更新する。
func (r *EncryptionKeyRepository) UpdateActive(ctx context.Context, id string, active bool) error {
	err := conn(ctx, r.db).
		Model(&EncryptionKeyModel{}).
		Where("id = ?", id).
		Update("active", active).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update encryption key",
			"operation", "update_encryption_key_active",
			"id", id,
			"active", active,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は指定IDの暗号鍵を削除する。
func (r *EncryptionKeyRepository) Delete(ctx context.Context, id string) error {
	err := conn(ctx, r.db).
		Where("id = ?", id).
		Delete(&EncryptionKeyModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete encryption key",
			"operation", "delete_encryption_key",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
