package infra

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"

	"github.com/formularium/formularium-backend/config"
)

// ErrSecretUnavailable はインスタンスの秘密情報を取得できない場合のエラー。
var ErrSecretUnavailable = errors.New("instance secret unavailable")

// SecretProvider は署名鍵を保護するインスタンス共通の秘密情報を提供する。
type SecretProvider interface {
	InstanceSecret(ctx context.Context) ([]byte, error)
}

// StaticSecretProvider は固定値を返す。開発環境とテストで使う。
type StaticSecretProvider struct {
	secret []byte
}

// NewStaticSecretProvider は新しいStaticSecretProviderを生成する。
func NewStaticSecretProvider(secret []byte) *StaticSecretProvider {
	return &StaticSecretProvider{secret: secret}
}

// InstanceSecret は固定の秘密情報を返す。
func (p *StaticSecretProvider) InstanceSecret(ctx context.Context) ([]byte, error) {
	if len(p.secret) == 0 {
		return nil, ErrSecretUnavailable
	}
	return p.secret, nil
}

// Decrypter はKMSによる復号のインターフェース。
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KMSSecretProvider はKMSで暗号化された秘密情報を初回アクセス時に復号してキャッシュする。
type KMSSecretProvider struct {
	decrypter  Decrypter
	ciphertext []byte

	mu     sync.Mutex
	secret []byte
}

// NewKMSSecretProvider はBase64の暗号文からKMSSecretProviderを生成する。
func NewKMSSecretProvider(decrypter Decrypter, ciphertextB64 string) (*KMSSecretProvider, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decoding SIGNING_SECRET_CIPHERTEXT: %w", err)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("SIGNING_SECRET_CIPHERTEXT is required")
	}
	return &KMSSecretProvider{decrypter: decrypter, ciphertext: ciphertext}, nil
}

// InstanceSecret は復号済みの秘密情報を返す。
func (p *KMSSecretProvider) InstanceSecret(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secret != nil {
		return p.secret, nil
	}
	plaintext, err := p.decrypter.Decrypt(ctx, p.ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	p.secret = plaintext
	return p.secret, nil
}

// VaultReader はVaultの読み出しのインターフェース。
type VaultReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultSecretProvider はVault KV v2 から秘密情報を読み出す。
// 値は data.data.secret に格納されている前提。
type VaultSecretProvider struct {
	logical VaultReader
	path    string
}

// NewVaultSecretProvider はVaultクライアントを生成してVaultSecretProviderを返す。
func NewVaultSecretProvider(addr, token, path string) (*VaultSecretProvider, error) {
	vcfg := vault.DefaultConfig()
	if addr != "" {
		vcfg.Address = addr
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("creating Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return &VaultSecretProvider{
		logical: client.Logical(),
		path:    strings.TrimPrefix(path, "/"),
	}, nil
}

// InstanceSecret はVaultから秘密情報を読み出す。鍵のローテーションに追従するためキャッシュしない。
func (p *VaultSecretProvider) InstanceSecret(ctx context.Context) ([]byte, error) {
	secret, err := p.logical.ReadWithContext(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no data at %s", ErrSecretUnavailable, p.path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid data format at %s", ErrSecretUnavailable, p.path)
	}
	value, ok := data["secret"].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: secret key not found at %s", ErrSecretUnavailable, p.path)
	}
	return []byte(value), nil
}

// NewSecretProvider は SIGNING_SECRET_SOURCE に応じたSecretProviderを生成する。
// kms の場合は閉じる必要のあるKMSクライアントも返す。
func NewSecretProvider(ctx context.Context, cfg *config.Config) (SecretProvider, *KMSClient, error) {
	switch cfg.SigningSecretSource {
	case "env":
		if cfg.SigningSecret == "" {
			return nil, nil, fmt.Errorf("SIGNING_SECRET is required")
		}
		return NewStaticSecretProvider([]byte(cfg.SigningSecret)), nil, nil
	case "kms":
		client, err := NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, nil, err
		}
		p, err := NewKMSSecretProvider(client, cfg.SigningSecretCiphertext)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return p, client, nil
	case "vault":
		p, err := NewVaultSecretProvider(cfg.VaultAddr, cfg.VaultToken, cfg.VaultSecretPath)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported signing secret source %q", cfg.SigningSecretSource)
	}
}
