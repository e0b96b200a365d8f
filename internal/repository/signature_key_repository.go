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

// SignatureKeyModel はgorm用のモデル定義。
type SignatureKeyModel struct {
	ID          string    `gorm:"size:36;primaryKey"`
	KeyType     string    `gorm:"size:16;not null;index:idx_signature_keys_type_active"`
	PublicKey   string    `gorm:"not null"`
	PrivateKey  string    `gorm:"not null"`
	SubkeyID    string    `gorm:"size:16;not null"`
	Fingerprint string    `gorm:"size:64;not null"`
	Active      bool      `gorm:"not null;index:idx_signature_keys_type_active"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (SignatureKeyModel) TableName() string {
	return "signature_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *SignatureKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *SignatureKeyModel) toDomain() *domain.SignatureKey {
	return &domain.SignatureKey{
		ID:          m.ID,
		Type:        domain.SignatureKeyType(m.KeyType),
		PublicKey:   m.PublicKey,
		PrivateKey:  m.PrivateKey,
		SubkeyID:    m.SubkeyID,
		Fingerprint: m.Fingerprint,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
}

// SignatureKeyRepository は署名鍵のデータアクセスを提供する。
type SignatureKeyRepository struct {
	db *gorm.DB
}

// NewSignatureKeyRepository は新しいSignatureKeyRepositoryを生成する。
func NewSignatureKeyRepository(db *gorm.DB) *SignatureKeyRepository {
	return &SignatureKeyRepository{db: db}
}

// Create は新しい署名鍵を保存する。
func (r *SignatureKeyRepository) Create(ctx context.Context, key *domain.SignatureKey) error {
	model := &SignatureKeyModel{
		ID:          key.ID,
		KeyType:     string(key.Type),
		PublicKey:   key.PublicKey,
		PrivateKey:  key.PrivateKey,
		SubkeyID:    key.SubkeyID,
		Fingerprint: key.Fingerprint,
		Active:      key.Active,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create signature key",
			"operation", "create_signature_key",
			"key_type", key.Type,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	return nil
}

// FindActiveByType は指定種別の有効な署名鍵のうち最新のものを取得する。
// 存在しない場合は nil を返す。
func (r *SignatureKeyRepository) FindActiveByType(ctx context.Context, keyType domain.SignatureKeyType) (*domain.SignatureKey, error) {
	var model SignatureKeyModel
	err := conn(ctx, r.db).
		Where("key_type = ? AND active = ?", string(keyType), true).
		Order("created_at DESC").
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find active signature key",
			"operation", "find_active_signature_key",
			"key_type", keyType,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// rotationLockKey は署名鍵ローテーション用のアドバイザリロックのキー。
const rotationLockKey int64 = 7301840915

// LockForRotation は署名鍵のローテーションをプロセスをまたいで直列化する。トランザクション内で使う。
// PostgreSQLではアドバイザリロック、それ以外では最新の署名鍵の行(無効なものを含む)をロックする。
// 鍵がまだない場合、MySQLではギャップロックが同時の挿入を防ぐ。
func (r *SignatureKeyRepository) LockForRotation(ctx context.Context) error {
	c := conn(ctx, r.db)

	var err error
	if c.Dialector.Name() == "postgres" {
		err = c.Exec("SELECT pg_advisory_xact_lock(?)", rotationLockKey).Error
	} else {
		var ids []string
		err = forUpdate(c.Model(&SignatureKeyModel{})).
			Order("created_at DESC").
			Order("id DESC").
			Limit(1).
			Pluck("id", &ids).Error
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to lock signature keys for rotation",
			"operation", "lock_signature_keys_for_rotation",
			"error", err,
		)
		return err
	}
	return nil
}

// DeactivateByType は指定種別の有効な署名鍵を行ロックしたうえで全て無効化する。
func (r *SignatureKeyRepository) DeactivateByType(ctx context.Context, keyType domain.SignatureKeyType) (int64, error) {
	c := conn(ctx, r.db)

	var ids []string
	err := forUpdate(c.Model(&SignatureKeyModel{})).
		Where("key_type = ? AND active = ?", string(keyType), true).
		Pluck("id", &ids).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to lock active signature keys",
			"operation", "deactivate_signature_keys",
			"key_type", keyType,
			"error", err,
		)
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := c.Model(&SignatureKeyModel{}).
		Where("id IN ?", ids).
		Update("active", false)
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to deactivate signature keys",
			"operation", "deactivate_signature_keys",
			"key_type", keyType,
			"error", res.Error,
		)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// FindAll は全ての署名鍵を作成順に取得する。
func (r *SignatureKeyRepository) FindAll(ctx context.Context) ([]*domain.SignatureKey, error) {
	var models []SignatureKeyModel
	err := conn(ctx, r.db).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find signature keys",
			"operation", "find_all_signature_keys",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.SignatureKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}
