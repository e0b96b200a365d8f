package domain

import "time"

// EncryptionKey は受信者の公開鍵エンティティを表す。
// 作成時は無効で、権限を持つユーザーの有効化によってのみ有効になる。
type EncryptionKey struct {
	ID          string
	OwnerUserID string
	Name        string
	PublicKey   string // ASCII armor
	Fingerprint string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
