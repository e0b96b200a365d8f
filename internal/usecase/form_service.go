package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/formularium/formularium-backend/internal/domain"
)

const maxNameLength = 100

// FormService はフォームの作成・編集を行う。全ての操作に CanEditForm が必要。
type FormService struct {
	forms FormRepository
	teams TeamRepository
	tx    TxManager
}

// NewFormService は新しいFormServiceを生成する。
func NewFormService(forms FormRepository, teams TeamRepository, tx TxManager) *FormService {
	return &FormService{forms: forms, teams: teams, tx: tx}
}

// CreateFormInput はフォーム作成の入力。
type CreateFormInput struct {
	Name          string
	Description   string
	RenderingCode string
	Active        bool
	TeamIDs       []string
}

// UpdateFormInput はフォーム更新の入力。nil のフィールドは変更しない。
type UpdateFormInput struct {
	Name        *string
	Description *string
	Active      *bool
}

// CreateForm はフォームを作成する。
func (s *FormService) CreateForm(ctx context.Context, actor domain.Principal, in CreateFormInput) (*domain.Form, error) {
	if err := actor.Require(domain.CapEditForm); err != nil {
		return nil, err
	}
	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	teamIDs := uniqueIDs(in.TeamIDs)

	form := &domain.Form{
		Name:          name,
		Description:   in.Description,
		RenderingCode: in.RenderingCode,
		Active:        in.Active,
		TeamIDs:       teamIDs,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireTeams(ctx, teamIDs); err != nil {
			return err
		}
		if err := s.forms.Create(ctx, form); err != nil {
			return fmt.Errorf("creating form: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "form created",
		"operation", "create_form",
		"form_id", form.ID,
		"actor", actor.UserID,
	)
	return form, nil
}

// UpdateForm はフォームの名前・説明・有効状態を更新する。
func (s *FormService) UpdateForm(ctx context.Context, actor domain.Principal, formID string, in UpdateFormInput) (*domain.Form, error) {
	if err := actor.Require(domain.CapEditForm); err != nil {
		return nil, err
	}

	var form *domain.Form
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		form, err = s.forms.FindByID(ctx, formID)
		if err != nil {
			return fmt.Errorf("finding form: %w", err)
		}
		if form == nil {
			return domain.ErrFormUnavailable
		}
		if in.Name != nil {
			name, err := normalizeName(*in.Name)
			if err != nil {
				return err
			}
			form.Name = name
		}
		if in.Description != nil {
			form.Description = *in.Description
		}
		if in.Active != nil {
			form.Active = *in.Active
		}
		if err := s.forms.Update(ctx, form); err != nil {
			return fmt.Errorf("updating form: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "form updated",
		"operation", "update_form",
		"form_id", form.ID,
		"active", form.Active,
		"actor", actor.UserID,
	)
	return form, nil
}

// SetFormTeams はフォームの受信チームを置き換える。
func (s *FormService) SetFormTeams(ctx context.Context, actor domain.Principal, formID string, teamIDs []string) (*domain.Form, error) {
	if err := actor.Require(domain.CapEditForm); err != nil {
		return nil, err
	}
	teamIDs = uniqueIDs(teamIDs)

	var form *domain.Form
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		form, err = s.forms.FindByID(ctx, formID)
		if err != nil {
			return fmt.Errorf("finding form: %w", err)
		}
		if form == nil {
			return domain.ErrFormUnavailable
		}
		if err := s.requireTeams(ctx, teamIDs); err != nil {
			return err
		}
		if err := s.forms.ReplaceTeams(ctx, form.ID, teamIDs); err != nil {
			return fmt.Errorf("replacing form teams: %w", err)
		}
		form.TeamIDs = teamIDs
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "form teams replaced",
		"operation", "set_form_teams",
		"form_id", form.ID,
		"team_count", len(teamIDs),
		"actor", actor.UserID,
	)
	return form, nil
}

// GetForm は管理者向けにフォームを取得する。無効なフォームも返す。
func (s *FormService) GetForm(ctx context.Context, actor domain.Principal, formID string) (*domain.Form, error) {
	if err := actor.Require(domain.CapEditForm); err != nil {
		return nil, err
	}
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("finding form: %w", err)
	}
	if form == nil {
		return nil, domain.ErrFormUnavailable
	}
	return form, nil
}

func (s *FormService) requireTeams(ctx context.Context, teamIDs []string) error {
	if len(teamIDs) == 0 {
		return nil
	}
	n, err := s.teams.CountByIDs(ctx, teamIDs)
	if err != nil {
		return fmt.Errorf("counting teams: %w", err)
	}
	if n != int64(len(teamIDs)) {
		return domain.ErrTeamNotFound
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
