package repository

import "gorm.io/gorm"

// Models はアプリケーションが使う全テーブルのモデルを返す。
func Models() []any {
	return []any{
		&SignatureKeyModel{},
		&EncryptionKeyModel{},
		&FormModel{},
		&FormTeamModel{},
		&FormSubmissionModel{},
		&TeamModel{},
		&TeamMembershipModel{},
		&TeamMembershipAccessKeyModel{},
		&SchemaMigrationModel{},
	}
}

// AutoMigrate はモデル定義からスキーマを作成する。
// 開発用SQLiteとテストで使い、本番はSQLマイグレーションを使う。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
