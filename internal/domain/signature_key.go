// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// SignatureKeyType は署名鍵の種別を表す。
type SignatureKeyType string

const (
	// SignatureKeyTypePrimary は長期的な識別用の主鍵を表す。
	SignatureKeyTypePrimary SignatureKeyType = "primary"
	// SignatureKeyTypeSecondary は送信データの署名に使う副鍵を表す。
	SignatureKeyTypeSecondary SignatureKeyType = "secondary"
)

// SignatureKey はサーバーの署名鍵エンティティを表す。
// 作成後に変更されるのは Active のみ。
type SignatureKey struct {
	ID          string
	Type        SignatureKeyType
	PublicKey   string // ASCII armor
	PrivateKey  string // ASCII armor、インスタンスの秘密情報で保護される
	SubkeyID    string
	Fingerprint string
	Active      bool
	CreatedAt   time.Time
}

// SignatureKeyMetadata は秘密鍵を含まない署名鍵のメタデータを表す。
type SignatureKeyMetadata struct {
	ID          string
	Type        SignatureKeyType
	SubkeyID    string
	Fingerprint string
	Active      bool
	CreatedAt   time.Time
}

// Metadata は秘密鍵を除いたメタデータを返す。
func (k *SignatureKey) Metadata() *SignatureKeyMetadata {
	return &SignatureKeyMetadata{
		ID:          k.ID,
		Type:        k.Type,
		SubkeyID:    k.SubkeyID,
		Fingerprint: k.Fingerprint,
		Active:      k.Active,
		CreatedAt:   k.CreatedAt,
	}
}

// GeneratedSigningKey は鍵生成の結果を表す。
// PublicKey と PrivateKey は主鍵と副鍵を含む鍵全体で、主鍵・副鍵どちらの行にも同じものを保存する。
type GeneratedSigningKey struct {
	PublicKey          string
	PrivateKey         string
	PrimaryKeyID       string
	SubkeyID           string
	PrimaryFingerprint string
	SubkeyFingerprint  string
}

// SigningKeyPair はローテーションで作成された主鍵と副鍵の組を表す。
type SigningKeyPair struct {
	Primary *SignatureKey
	Subkey  *SignatureKey
}
