package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/formularium/formularium-backend/internal/domain"
)

// KeyWrappingService はメンバーシップごとのラップ済み鍵を管理する。
// サーバーが保持するのはラップ済みの鍵だけで、チームの秘密そのものは扱わない。
type KeyWrappingService struct {
	keys        EncryptionKeyRepository
	memberships MembershipRepository
	accessKeys  AccessKeyRepository
	validator   MessageValidator
	tx          TxManager
}

// NewKeyWrappingService は新しいKeyWrappingServiceを生成する。
func NewKeyWrappingService(keys EncryptionKeyRepository, memberships MembershipRepository, accessKeys AccessKeyRepository, validator MessageValidator, tx TxManager) *KeyWrappingService {
	return &KeyWrappingService{
		keys:        keys,
		memberships: memberships,
		accessKeys:  accessKeys,
		validator:   validator,
		tx:          tx,
	}
}

// AddMembershipKey はラップ済み鍵を1件保存する。
// 認可は呼び出し元で済んでいる前提で、ここでは形式だけを検証する。
func (s *KeyWrappingService) AddMembershipKey(ctx context.Context, membershipID, encryptionKeyID, wrappedKey string) (*domain.TeamMembershipAccessKey, error) {
	if err := s.validateWrappedKey(wrappedKey); err != nil {
		return nil, err
	}
	key := &domain.TeamMembershipAccessKey{
		MembershipID:    membershipID,
		EncryptionKeyID: encryptionKeyID,
		WrappedKey:      wrappedKey,
	}
	if err := s.accessKeys.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("creating access key: %w", err)
	}
	return key, nil
}

// ActivateKey は暗号鍵を有効化する。
// 所有者の既存メンバーシップ全てについて、新しい鍵向けにラップし直した鍵が必要。
func (s *KeyWrappingService) ActivateKey(ctx context.Context, actor domain.Principal, keyID string, wrapped domain.WrappedKeysByMembership) (*domain.EncryptionKey, error) {
	if err := actor.Require(domain.CapActivateEncryptionKey); err != nil {
		return nil, err
	}

	var key *domain.EncryptionKey
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		key, err = s.keys.LockByID(ctx, keyID)
		if err != nil {
			return fmt.Errorf("locking encryption key: %w", err)
		}
		if key == nil {
			return domain.ErrEncryptionKeyNotFound
		}
		if key.Active {
			return domain.ErrAlreadyActive
		}

		memberships, err := s.memberships.FindByUser(ctx, key.OwnerUserID)
		if err != nil {
			return fmt.Errorf("finding memberships: %w", err)
		}
		if err := checkRewrap(memberships, wrapped); err != nil {
			return err
		}
		for _, m := range memberships {
			if _, err := s.AddMembershipKey(ctx, m.ID, key.ID, wrapped[m.ID]); err != nil {
				return err
			}
		}

		if err := s.keys.UpdateActive(ctx, key.ID, true); err != nil {
			return fmt.Errorf("activating encryption key: %w", err)
		}
		key.Active = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "encryption key activated",
		"operation", "activate_encryption_key",
		"key_id", key.ID,
		"owner", key.OwnerUserID,
		"actor", actor.UserID,
		"rewrapped_memberships", len(wrapped),
	)
	return key, nil
}

// checkRewrap は既存メンバーシップとラップ済み鍵が過不足なく対応しているか検証する。
func checkRewrap(memberships []*domain.TeamMembership, wrapped domain.WrappedKeysByMembership) error {
	known := make(map[string]struct{}, len(memberships))
	for _, m := range memberships {
		known[m.ID] = struct{}{}
		if _, ok := wrapped[m.ID]; !ok {
			return fmt.Errorf("%w: membership %s", domain.ErrIncompleteRewrap, m.ID)
		}
	}
	for id := range wrapped {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: membership %s", domain.ErrUnexpectedKeyWrap, id)
		}
	}
	return nil
}

// MyAccessKeys は操作者自身のチームに対するラップ済み鍵を返す。
func (s *KeyWrappingService) MyAccessKeys(ctx context.Context, actor domain.Principal, teamID string) ([]*domain.TeamMembershipAccessKey, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	membership, err := s.memberships.FindByTeamAndUser(ctx, teamID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	if membership == nil {
		return nil, domain.ErrNotAMember
	}
	keys, err := s.accessKeys.FindByMembership(ctx, membership.ID)
	if err != nil {
		return nil, fmt.Errorf("finding access keys: %w", err)
	}
	return keys, nil
}

func (s *KeyWrappingService) validateWrappedKey(wrappedKey string) error {
	if wrappedKey == "" {
		return domain.ErrInvalidWrappedKey
	}
	if err := s.validator.ValidateMessage(wrappedKey); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidWrappedKey, err)
	}
	return nil
}
