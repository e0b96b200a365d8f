package usecase

import (
	"context"

	"github.com/formularium/formularium-backend/internal/domain"
)

// FormRepository はフォームのデータアクセスのインターフェース。
type FormRepository interface {
	Create(ctx context.Context, form *domain.Form) error
	FindByID(ctx context.Context, id string) (*domain.Form, error)
	Update(ctx context.Context, form *domain.Form) error
	ReplaceTeams(ctx context.Context, formID string, teamIDs []string) error
}

// SubmissionRepository は送信データのデータアクセスのインターフェース。
type SubmissionRepository interface {
	Create(ctx context.Context, s *domain.FormSubmission) error
	FindByFormID(ctx context.Context, formID string) ([]*domain.FormSubmission, error)
}

// EncryptionKeyRepository は暗号鍵のデータアクセスのインターフェース。
type EncryptionKeyRepository interface {
	Create(ctx context.Context, key *domain.EncryptionKey) error
	FindByID(ctx context.Context, id string) (*domain.EncryptionKey, error)
	LockByID(ctx context.Context, id string) (*domain.EncryptionKey, error)
	FindByOwner(ctx context.Context, ownerUserID string) ([]*domain.EncryptionKey, error)
	LockByOwner(ctx context.Context, ownerUserID string) ([]*domain.EncryptionKey, error)
	FindInactive(ctx context.Context) ([]*domain.EncryptionKey, error)
	FindActiveByTeamIDs(ctx context.Context, teamIDs []string) ([]*domain.EncryptionKey, error)
	UpdateActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// TeamRepository はチームのデータアクセスのインターフェース。
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	FindByID(ctx context.Context, id string) (*domain.Team, error)
	LockByID(ctx context.Context, id string) (*domain.Team, error)
	FindByUserID(ctx context.Context, userID string) ([]*domain.Team, error)
	CountByIDs(ctx context.Context, ids []string) (int64, error)
}

// MembershipRepository はチームメンバーシップのデータアクセスのインターフェース。
type MembershipRepository interface {
	Create(ctx context.Context, m *domain.TeamMembership) error
	FindByTeamAndUser(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error)
	FindByTeam(ctx context.Context, teamID string) ([]*domain.TeamMembership, error)
	FindByUser(ctx context.Context, userID string) ([]*domain.TeamMembership, error)
	CountByTeam(ctx context.Context, teamID string) (int64, error)
	CountByTeamAndRole(ctx context.Context, teamID string, role domain.TeamRole) (int64, error)
	UpdateRole(ctx context.Context, id string, role domain.TeamRole) error
	Delete(ctx context.Context, id string) error
}

// AccessKeyRepository はラップ済み鍵のデータアクセスのインターフェース。
type AccessKeyRepository interface {
	Create(ctx context.Context, key *domain.TeamMembershipAccessKey) error
	FindByMembership(ctx context.Context, membershipID string) ([]*domain.TeamMembershipAccessKey, error)
	DeleteByMembership(ctx context.Context, membershipID string) (int64, error)
	DeleteByEncryptionKey(ctx context.Context, encryptionKeyID string) (int64, error)
}

// KeyInspector は受信者の公開鍵を検証する。
type KeyInspector interface {
	InspectPublicKey(armored string) (string, error)
}

// MessageValidator はラップ済み鍵がOpenPGPメッセージとして読めるか検証する。
type MessageValidator interface {
	ValidateMessage(armored string) error
}
