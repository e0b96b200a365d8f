package domain

import (
	"errors"
	"fmt"
)

// エラー種別。個別のエラーはいずれかの種別をラップし、errors.Is で種別判定できる。
var (
	// ErrNotFound は対象が存在しない、または利用できない場合のエラー。
	ErrNotFound = errors.New("not found")

	// ErrForbidden は権限不足のエラー。
	ErrForbidden = errors.New("forbidden")

	// ErrInvariantViolation は不変条件に違反する操作のエラー。
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrCryptoUnavailable は署名鍵が利用できない場合のエラー。
	ErrCryptoUnavailable = errors.New("crypto unavailable")

	// ErrMalformedInput は入力が不正な場合のエラー。
	ErrMalformedInput = errors.New("malformed input")
)

var (
	// ErrFormUnavailable はフォームが存在しないか無効化されている場合のエラー。
	// 両者を区別しない。
	ErrFormUnavailable = fmt.Errorf("%w: form unavailable", ErrNotFound)

	// ErrTeamNotFound はチームが存在しない場合のエラー。
	ErrTeamNotFound = fmt.Errorf("%w: team not found", ErrNotFound)

	// ErrNotAMember は対象ユーザーがチームに所属していない場合のエラー。
	ErrNotAMember = fmt.Errorf("%w: user is not a member of this team", ErrNotFound)

	// ErrEncryptionKeyNotFound は暗号鍵が存在しない場合のエラー。
	ErrEncryptionKeyNotFound = fmt.Errorf("%w: encryption key not found", ErrNotFound)

	// ErrLastAdmin はチーム最後の管理者を降格・削除しようとした場合のエラー。
	ErrLastAdmin = fmt.Errorf("%w: every team needs at least one admin", ErrInvariantViolation)

	// ErrAlreadyActive は既に有効な暗号鍵を有効化しようとした場合のエラー。
	ErrAlreadyActive = fmt.Errorf("%w: encryption key is already active", ErrInvariantViolation)

	// ErrMissingKeyWrap は招待ユーザーの有効な鍵に対するラップ済み鍵が不足している場合のエラー。
	ErrMissingKeyWrap = fmt.Errorf("%w: wrapped key missing for an active encryption key", ErrInvariantViolation)

	// ErrIncompleteRewrap は既存メンバーシップに対するラップ済み鍵が不足している場合のエラー。
	ErrIncompleteRewrap = fmt.Errorf("%w: wrapped key missing for an existing membership", ErrInvariantViolation)

	// ErrAlreadyMember は既にチームに所属しているユーザーを追加しようとした場合のエラー。
	ErrAlreadyMember = fmt.Errorf("%w: user is already a member of this team", ErrInvariantViolation)

	// ErrNoActiveSigningKey は有効な署名鍵が存在しない場合のエラー。
	ErrNoActiveSigningKey = fmt.Errorf("%w: no active signing key", ErrCryptoUnavailable)

	// ErrKeyUnlockFailed は署名鍵のロック解除に失敗した場合のエラー。
	ErrKeyUnlockFailed = fmt.Errorf("%w: signing key could not be unlocked", ErrCryptoUnavailable)

	// ErrInvalidPublicKey は公開鍵の形式が不正な場合のエラー。
	ErrInvalidPublicKey = fmt.Errorf("%w: invalid public key", ErrMalformedInput)

	// ErrInvalidWrappedKey はラップ済み鍵の形式が不正な場合のエラー。
	ErrInvalidWrappedKey = fmt.Errorf("%w: invalid wrapped key", ErrMalformedInput)

	// ErrUnexpectedKeyWrap は対象外の鍵やメンバーシップに対するラップ済み鍵が渡された場合のエラー。
	ErrUnexpectedKeyWrap = fmt.Errorf("%w: wrapped key does not belong to this request", ErrMalformedInput)

	// ErrInvalidRole はロールが不正な場合のエラー。
	ErrInvalidRole = fmt.Errorf("%w: invalid role", ErrMalformedInput)

	// ErrInvalidName は名前が空または長すぎる場合のエラー。
	ErrInvalidName = fmt.Errorf("%w: invalid name", ErrMalformedInput)

	// ErrInvalidID はIDの形式が不正な場合のエラー。
	ErrInvalidID = fmt.Errorf("%w: invalid id", ErrMalformedInput)

	// ErrEmptyContent は送信内容が空の場合のエラー。
	ErrEmptyContent = fmt.Errorf("%w: empty content", ErrMalformedInput)

	// ErrInvalidSignature は署名の検証に失敗した場合のエラー。
	ErrInvalidSignature = fmt.Errorf("%w: signature does not verify", ErrMalformedInput)
)

var (
	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
