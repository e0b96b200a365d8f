package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gosimple/slug"

	"github.com/formularium/formularium-backend/internal/domain"
)

const fallbackTeamSlug = "team"

// TeamService はチームの作成と参照を行う。
type TeamService struct {
	teams       TeamRepository
	memberships *MembershipService
	tx          TxManager
}

// NewTeamService は新しいTeamServiceを生成する。
func NewTeamService(teams TeamRepository, memberships *MembershipService, tx TxManager) *TeamService {
	return &TeamService{teams: teams, memberships: memberships, tx: tx}
}

// CreateTeam はチームを作成し、作成者を最初の管理者として追加する。
// チームと最初のメンバーシップは同一トランザクションで作成する。
func (s *TeamService) CreateTeam(ctx context.Context, actor domain.Principal, name string, wrapped domain.WrappedKeys) (*domain.Team, error) {
	if err := actor.Require(domain.CapCreateTeam); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	teamSlug := slug.Make(name)
	if teamSlug == "" {
		teamSlug = fallbackTeamSlug
	}
	team := &domain.Team{Name: name, Slug: teamSlug}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.teams.Create(ctx, team); err != nil {
			return fmt.Errorf("creating team: %w", err)
		}
		if _, err := s.memberships.addMember(ctx, team.ID, actor.UserID, domain.TeamRoleAdmin, wrapped); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "team created",
		"operation", "create_team",
		"team_id", team.ID,
		"slug", team.Slug,
		"actor", actor.UserID,
	)
	return team, nil
}

// RetrieveTeam はチームを取得する。
func (s *TeamService) RetrieveTeam(ctx context.Context, actor domain.Principal, teamID string) (*domain.Team, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("finding team: %w", err)
	}
	if team == nil {
		return nil, domain.ErrTeamNotFound
	}
	return team, nil
}

// ListTeams は操作者が所属するチームを返す。
func (s *TeamService) ListTeams(ctx context.Context, actor domain.Principal) ([]*domain.Team, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	teams, err := s.teams.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding teams: %w", err)
	}
	return teams, nil
}
