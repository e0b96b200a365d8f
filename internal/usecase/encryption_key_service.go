package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/formularium/formularium-backend/internal/domain"
)

// EncryptionKeyService は受信者の暗号鍵のライフサイクルを管理する。
// 鍵は無効な状態で登録され、権限を持つユーザーが有効化するまで受信者にならない。
type EncryptionKeyService struct {
	keys       EncryptionKeyRepository
	accessKeys AccessKeyRepository
	inspector  KeyInspector
	wrapping   *KeyWrappingService
	tx         TxManager
}

// NewEncryptionKeyService は新しいEncryptionKeyServiceを生成する。
func NewEncryptionKeyService(keys EncryptionKeyRepository, accessKeys AccessKeyRepository, inspector KeyInspector, wrapping *KeyWrappingService, tx TxManager) *EncryptionKeyService {
	return &EncryptionKeyService{
		keys:       keys,
		accessKeys: accessKeys,
		inspector:  inspector,
		wrapping:   wrapping,
		tx:         tx,
	}
}

// AddKey は操作者自身の公開鍵を無効な状態で登録する。
func (s *EncryptionKeyService) AddKey(ctx context.Context, actor domain.Principal, publicKey, name string) (*domain.EncryptionKey, error) {
	if err := actor.Require(domain.CapAddEncryptionKey); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, domain.ErrInvalidName
	}
	fp, err := s.inspector.InspectPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPublicKey, err)
	}

	key := &domain.EncryptionKey{
		OwnerUserID: actor.UserID,
		Name:        name,
		PublicKey:   publicKey,
		Fingerprint: fp,
		Active:      false,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("creating encryption key: %w", err)
	}

	slog.InfoContext(ctx, "encryption key added",
		"operation", "add_encryption_key",
		"key_id", key.ID,
		"fingerprint", fp,
		"owner", actor.UserID,
	)
	return key, nil
}

// ActivateKey は暗号鍵を有効化する。
func (s *EncryptionKeyService) ActivateKey(ctx context.Context, actor domain.Principal, keyID string, wrapped domain.WrappedKeysByMembership) (*domain.EncryptionKey, error) {
	return s.wrapping.ActivateKey(ctx, actor, keyID, wrapped)
}

// RemoveKey は暗号鍵と、その鍵向けのラップ済み鍵を全て削除する。
func (s *EncryptionKeyService) RemoveKey(ctx context.Context, actor domain.Principal, keyID string) error {
	if err := actor.Require(domain.CapActivateEncryptionKey); err != nil {
		return err
	}

	var revoked int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		key, err := s.keys.LockByID(ctx, keyID)
		if err != nil {
			return fmt.Errorf("locking encryption key: %w", err)
		}
		if key == nil {
			return domain.ErrEncryptionKeyNotFound
		}
		revoked, err = s.accessKeys.DeleteByEncryptionKey(ctx, key.ID)
		if err != nil {
			return fmt.Errorf("deleting access keys: %w", err)
		}
		if err := s.keys.Delete(ctx, key.ID); err != nil {
			return fmt.Errorf("deleting encryption key: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "encryption key removed",
		"operation", "remove_encryption_key",
		"key_id", keyID,
		"revoked_access_keys", revoked,
		"actor", actor.UserID,
	)
	return nil
}

// ListOwnKeys は操作者自身の暗号鍵を返す。
func (s *EncryptionKeyService) ListOwnKeys(ctx context.Context, actor domain.Principal) ([]*domain.EncryptionKey, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	keys, err := s.keys.FindByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding own keys: %w", err)
	}
	return keys, nil
}

// ListInactiveKeys は有効化待ちの暗号鍵を返す。
func (s *EncryptionKeyService) ListInactiveKeys(ctx context.Context, actor domain.Principal) ([]*domain.EncryptionKey, error) {
	if err := actor.Require(domain.CapActivateEncryptionKey); err != nil {
		return nil, err
	}
	keys, err := s.keys.FindInactive(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding inactive keys: %w", err)
	}
	return keys, nil
}
