package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/formularium/formularium-backend/internal/domain"
)

// MembershipService はチームメンバーシップとロールの不変条件を管理する。
// チームの行をロックしてから読み書きするため、同じチームへの変更は直列化される。
type MembershipService struct {
	teams       TeamRepository
	memberships MembershipRepository
	keys        EncryptionKeyRepository
	accessKeys  AccessKeyRepository
	wrapping    *KeyWrappingService
	tx          TxManager
}

// NewMembershipService は新しいMembershipServiceを生成する。
func NewMembershipService(teams TeamRepository, memberships MembershipRepository, keys EncryptionKeyRepository, accessKeys AccessKeyRepository, wrapping *KeyWrappingService, tx TxManager) *MembershipService {
	return &MembershipService{
		teams:       teams,
		memberships: memberships,
		keys:        keys,
		accessKeys:  accessKeys,
		wrapping:    wrapping,
		tx:          tx,
	}
}

// AddMemberInput はメンバー追加の入力。
type AddMemberInput struct {
	TeamID        string
	InvitedUserID string
	Role          string
	WrappedKeys   domain.WrappedKeys
}

// AddMember はチームにメンバーを追加する。
// チーム管理者か、メンバーのいないチームに自分自身を追加する CanCreateTeam 保持者だけが実行できる。
func (s *MembershipService) AddMember(ctx context.Context, actor domain.Principal, in AddMemberInput) (*domain.TeamMembership, error) {
	role, err := domain.ParseTeamRole(in.Role)
	if err != nil {
		return nil, err
	}
	if in.InvitedUserID == "" {
		return nil, domain.ErrInvalidID
	}

	var membership *domain.TeamMembership
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		team, err := s.lockTeam(ctx, in.TeamID)
		if err != nil {
			return err
		}
		if err := s.authorizeAdd(ctx, actor, team.ID, in.InvitedUserID); err != nil {
			return err
		}
		membership, err = s.addMember(ctx, team.ID, in.InvitedUserID, role, in.WrappedKeys)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "team member added",
		"operation", "add_team_member",
		"team_id", membership.TeamID,
		"user_id", membership.UserID,
		"role", membership.Role,
		"actor", actor.UserID,
	)
	return membership, nil
}

func (s *MembershipService) authorizeAdd(ctx context.Context, actor domain.Principal, teamID, invitedUserID string) error {
	if actor.UserID == "" {
		return fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	if actor.Capabilities.Has(domain.CapCreateTeam) && invitedUserID == actor.UserID {
		n, err := s.memberships.CountByTeam(ctx, teamID)
		if err != nil {
			return fmt.Errorf("counting members: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
	return s.requireAdmin(ctx, actor, teamID)
}

// addMember は認可済みの前提でメンバーシップとラップ済み鍵を作成する。
// 招待ユーザーの有効な暗号鍵それぞれに対してラップ済み鍵が必要。
// 招待ユーザーの鍵は全て行ロックし、同じユーザーの鍵の有効化と直列化する。
func (s *MembershipService) addMember(ctx context.Context, teamID, userID string, role domain.TeamRole, wrapped domain.WrappedKeys) (*domain.TeamMembership, error) {
	ownedKeys, err := s.keys.LockByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("locking encryption keys: %w", err)
	}
	activeKeys := make([]*domain.EncryptionKey, 0, len(ownedKeys))
	for _, k := range ownedKeys {
		if k.Active {
			activeKeys = append(activeKeys, k)
		}
	}

	existing, err := s.memberships.FindByTeamAndUser(ctx, teamID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyMember
	}

	if err := checkKeyWraps(activeKeys, wrapped); err != nil {
		return nil, err
	}
	for _, k := range activeKeys {
		if err := s.wrapping.validateWrappedKey(wrapped[k.ID]); err != nil {
			return nil, err
		}
	}

	membership := &domain.TeamMembership{
		TeamID: teamID,
		UserID: userID,
		Role:   role,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		return nil, fmt.Errorf("creating membership: %w", err)
	}
	for _, k := range activeKeys {
		if _, err := s.wrapping.AddMembershipKey(ctx, membership.ID, k.ID, wrapped[k.ID]); err != nil {
			return nil, err
		}
	}
	return membership, nil
}

func checkKeyWraps(activeKeys []*domain.EncryptionKey, wrapped domain.WrappedKeys) error {
	known := make(map[string]struct{}, len(activeKeys))
	for _, k := range activeKeys {
		known[k.ID] = struct{}{}
		if _, ok := wrapped[k.ID]; !ok {
			return fmt.Errorf("%w: encryption key %s", domain.ErrMissingKeyWrap, k.ID)
		}
	}
	for id := range wrapped {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: encryption key %s", domain.ErrUnexpectedKeyWrap, id)
		}
	}
	return nil
}

// UpdateMember はメンバーのロールを変更する。チーム管理者だけが実行できる。
// role が nil の場合は何も変更しない。
func (s *MembershipService) UpdateMember(ctx context.Context, actor domain.Principal, teamID, affectedUserID string, role *domain.TeamRole) (*domain.TeamMembership, error) {
	if role != nil && !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	var membership *domain.TeamMembership
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		team, err := s.lockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if err := s.requireAdmin(ctx, actor, team.ID); err != nil {
			return err
		}
		membership, err = s.findMember(ctx, team.ID, affectedUserID)
		if err != nil {
			return err
		}
		if role == nil || *role == membership.Role {
			return nil
		}
		if membership.Role == domain.TeamRoleAdmin {
			if err := s.requireAnotherAdmin(ctx, team.ID); err != nil {
				return err
			}
		}
		if err := s.memberships.UpdateRole(ctx, membership.ID, *role); err != nil {
			return fmt.Errorf("updating role: %w", err)
		}
		membership.Role = *role
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "team member updated",
		"operation", "update_team_member",
		"team_id", membership.TeamID,
		"user_id", membership.UserID,
		"role", membership.Role,
		"actor", actor.UserID,
	)
	return membership, nil
}

// RemoveMember はメンバーとそのラップ済み鍵を削除する。
// チーム管理者か CanRemoveTeamMember の保持者だけが実行できる。
func (s *MembershipService) RemoveMember(ctx context.Context, actor domain.Principal, teamID, affectedUserID string) error {
	var revoked int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		team, err := s.lockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if !actor.Capabilities.Has(domain.CapRemoveTeamMember) || actor.UserID == "" {
			if err := s.requireAdmin(ctx, actor, team.ID); err != nil {
				return err
			}
		}
		membership, err := s.findMember(ctx, team.ID, affectedUserID)
		if err != nil {
			return err
		}
		if membership.Role == domain.TeamRoleAdmin {
			if err := s.requireAnotherAdmin(ctx, team.ID); err != nil {
				return err
			}
		}
		revoked, err = s.accessKeys.DeleteByMembership(ctx, membership.ID)
		if err != nil {
			return fmt.Errorf("deleting access keys: %w", err)
		}
		if err := s.memberships.Delete(ctx, membership.ID); err != nil {
			return fmt.Errorf("deleting membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "team member removed",
		"operation", "remove_team_member",
		"team_id", teamID,
		"user_id", affectedUserID,
		"revoked_access_keys", revoked,
		"actor", actor.UserID,
	)
	return nil
}

// ListMembers はチームのメンバー一覧を返す。メンバーだけが参照できる。
func (s *MembershipService) ListMembers(ctx context.Context, actor domain.Principal, teamID string) ([]*domain.TeamMembership, error) {
	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("finding team: %w", err)
	}
	if team == nil {
		return nil, domain.ErrTeamNotFound
	}
	if err := s.requireMember(ctx, actor, team.ID); err != nil {
		return nil, err
	}
	members, err := s.memberships.FindByTeam(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("finding members: %w", err)
	}
	return members, nil
}

func (s *MembershipService) lockTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	team, err := s.teams.LockByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("locking team: %w", err)
	}
	if team == nil {
		return nil, domain.ErrTeamNotFound
	}
	return team, nil
}

func (s *MembershipService) findMember(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	m, err := s.memberships.FindByTeamAndUser(ctx, teamID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	if m == nil {
		return nil, domain.ErrNotAMember
	}
	return m, nil
}

func (s *MembershipService) requireMember(ctx context.Context, actor domain.Principal, teamID string) error {
	if actor.UserID == "" {
		return fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	m, err := s.memberships.FindByTeamAndUser(ctx, teamID, actor.UserID)
	if err != nil {
		return fmt.Errorf("finding membership: %w", err)
	}
	if m == nil {
		return fmt.Errorf("%w: not a member of this team", domain.ErrForbidden)
	}
	return nil
}

func (s *MembershipService) requireAdmin(ctx context.Context, actor domain.Principal, teamID string) error {
	if actor.UserID == "" {
		return fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	m, err := s.memberships.FindByTeamAndUser(ctx, teamID, actor.UserID)
	if err != nil {
		return fmt.Errorf("finding membership: %w", err)
	}
	if m == nil || m.Role != domain.TeamRoleAdmin {
		return fmt.Errorf("%w: team admin required", domain.ErrForbidden)
	}
	return nil
}

// requireAnotherAdmin はチームロックの内側で呼ぶこと。
func (s *MembershipService) requireAnotherAdmin(ctx context.Context, teamID string) error {
	admins, err := s.memberships.CountByTeamAndRole(ctx, teamID, domain.TeamRoleAdmin)
	if err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if admins <= 1 {
		return domain.ErrLastAdmin
	}
	return nil
}
