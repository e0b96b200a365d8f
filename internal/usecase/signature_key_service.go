package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/formularium/formularium-backend/internal/domain"
)

// SignatureKeyRepository は署名鍵のデータアクセスのインターフェース。
type SignatureKeyRepository interface {
	Create(ctx context.Context, key *domain.SignatureKey) error
	FindActiveByType(ctx context.Context, keyType domain.SignatureKeyType) (*domain.SignatureKey, error)
	LockForRotation(ctx context.Context) error
	DeactivateByType(ctx context.Context, keyType domain.SignatureKeyType) (int64, error)
	FindAll(ctx context.Context) ([]*domain.SignatureKey, error)
}

// SigningKeyGenerator は保護済みの署名鍵を生成する。
type SigningKeyGenerator interface {
	Generate(ctx context.Context) (*domain.GeneratedSigningKey, error)
}

// Signer はロック解除済みの署名鍵。
type Signer interface {
	SignDetached(message []byte) (string, error)
}

// SigningKeyUnlocker はインスタンスの秘密情報で署名鍵のロックを解除する。
type SigningKeyUnlocker interface {
	Unlock(ctx context.Context, key *domain.SignatureKey) (Signer, error)
}

// SignatureVerifier は分離署名を検証し、署名した鍵のIDを返す。
type SignatureVerifier interface {
	VerifyDetached(publicKeys []string, message []byte, signature string) (string, error)
}

// SignatureKeyService は署名鍵のライフサイクルを管理する。
type SignatureKeyService struct {
	repo      SignatureKeyRepository
	tx        TxManager
	generator SigningKeyGenerator
	verifier  SignatureVerifier
	metrics   Metrics

	// 同一プロセス内のローテーションを直列化する。プロセス間はデータベースのロックで直列化する
	rotateMu sync.Mutex
}

// NewSignatureKeyService は新しいSignatureKeyServiceを生成する。
func NewSignatureKeyService(repo SignatureKeyRepository, tx TxManager, generator SigningKeyGenerator, verifier SignatureVerifier, metrics Metrics) *SignatureKeyService {
	return &SignatureKeyService{
		repo:      repo,
		tx:        tx,
		generator: generator,
		verifier:  verifier,
		metrics:   metricsOrNop(metrics),
	}
}

// RotateSigningKey は新しい主鍵と署名用副鍵を生成し、既存の有効な鍵を無効化する。
// 無効化と新しい鍵の保存は、ローテーション用のロックを取得した同一トランザクションで行う。
func (s *SignatureKeyService) RotateSigningKey(ctx context.Context) (*domain.SigningKeyPair, error) {
	ctx, span := tracer.Start(ctx, "SignatureKeyService.RotateSigningKey")
	defer span.End()

	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	generated, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	pair := &domain.SigningKeyPair{
		Primary: &domain.SignatureKey{
			Type:        domain.SignatureKeyTypePrimary,
			PublicKey:   generated.PublicKey,
			PrivateKey:  generated.PrivateKey,
			SubkeyID:    generated.PrimaryKeyID,
			Fingerprint: generated.PrimaryFingerprint,
			Active:      true,
		},
		Subkey: &domain.SignatureKey{
			Type:        domain.SignatureKeyTypeSecondary,
			PublicKey:   generated.PublicKey,
			PrivateKey:  generated.PrivateKey,
			SubkeyID:    generated.SubkeyID,
			Fingerprint: generated.SubkeyFingerprint,
			Active:      true,
		},
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockForRotation(ctx); err != nil {
			return fmt.Errorf("locking signing keys: %w", err)
		}
		for _, keyType := range []domain.SignatureKeyType{domain.SignatureKeyTypePrimary, domain.SignatureKeyTypeSecondary} {
			if _, err := s.repo.DeactivateByType(ctx, keyType); err != nil {
				return fmt.Errorf("deactivating %s keys: %w", keyType, err)
			}
		}
		if err := s.repo.Create(ctx, pair.Primary); err != nil {
			return fmt.Errorf("creating primary key: %w", err)
		}
		if err := s.repo.Create(ctx, pair.Subkey); err != nil {
			return fmt.Errorf("creating subkey: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SigningKeyRotated()
	slog.InfoContext(ctx, "signing key rotated",
		"operation", "rotate_signing_key",
		"fingerprint", pair.Primary.Fingerprint,
		"subkey_id", pair.Subkey.SubkeyID,
	)
	return pair, nil
}

// GetActiveSigningKey は現在有効な署名用副鍵を取得する。
func (s *SignatureKeyService) GetActiveSigningKey(ctx context.Context) (*domain.SignatureKey, error) {
	key, err := s.repo.FindActiveByType(ctx, domain.SignatureKeyTypeSecondary)
	if err != nil {
		return nil, fmt.Errorf("finding active signing key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrNoActiveSigningKey
	}
	return key, nil
}

// GetActivePublicKey は外部で検証するための公開鍵を返す。
func (s *SignatureKeyService) GetActivePublicKey(ctx context.Context) (string, error) {
	key, err := s.GetActiveSigningKey(ctx)
	if err != nil {
		return "", err
	}
	return key.PublicKey, nil
}

// ListSigningKeys は全ての署名鍵のメタデータを返す。秘密鍵は含まない。
func (s *SignatureKeyService) ListSigningKeys(ctx context.Context) ([]*domain.SignatureKeyMetadata, error) {
	keys, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding signing keys: %w", err)
	}
	metadata := make([]*domain.SignatureKeyMetadata, len(keys))
	for i, k := range keys {
		metadata[i] = k.Metadata()
	}
	return metadata, nil
}

// VerifySubmission は封筒と署名を、これまでに発行した全ての署名鍵で検証する。
// 検証に成功した場合は署名した鍵のIDを返す。
func (s *SignatureKeyService) VerifySubmission(ctx context.Context, envelope, signature string) (string, error) {
	if envelope == "" || signature == "" {
		return "", domain.ErrMalformedInput
	}

	keys, err := s.repo.FindAll(ctx)
	if err != nil {
		return "", fmt.Errorf("finding signing keys: %w", err)
	}
	seen := make(map[string]struct{}, len(keys))
	publicKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k.PublicKey]; ok {
			continue
		}
		seen[k.PublicKey] = struct{}{}
		publicKeys = append(publicKeys, k.PublicKey)
	}
	if len(publicKeys) == 0 {
		return "", domain.ErrNoActiveSigningKey
	}

	keyID, err := s.verifier.VerifyDetached(publicKeys, []byte(envelope), signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return keyID, nil
}
