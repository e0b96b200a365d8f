package domain

import "time"

// MigrationStatus はスキーマ変更の適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration は1つのSQLファイルに対応するスキーマ変更
type Migration struct {
	Version   string // 例: "001"
	Name      string
	FileName  string
	Checksum  string     // SQL本文のSHA-256
	AppliedAt *time.Time // 未適用の場合はnil
	Status    MigrationStatus
}
