// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txKey struct{}

// TxManager はコンテキストに紐づくトランザクションを管理する。
// リポジトリはコンテキスト上のトランザクションがあればそれを使う。
type TxManager struct {
	db *gorm.DB
}

// NewTxManager は新しいTxManagerを生成する。
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx は fn をトランザクション内で実行する。
// 既にトランザクション内であれば新たに開始せずそのまま実行する。
// fn がエラーを返すかパニックした場合はロールバックされる。
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// forUpdate は行ロックを付与する。SQLiteではドライバが無視する。
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
