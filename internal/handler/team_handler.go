package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/internal/usecase"
	"github.com/formularium/formularium-backend/pkg/httputil"
)

// CreateTeamRequest はチーム作成のリクエスト形式。
// wrapped_keys は作成者の有効な暗号鍵IDごとのラップ済みチーム鍵。
type CreateTeamRequest struct {
	Name        string            `json:"name"`
	WrappedKeys map[string]string `json:"wrapped_keys"`
}

// AddMemberRequest はメンバー追加のリクエスト形式。
type AddMemberRequest struct {
	UserID      string            `json:"user_id"`
	Role        string            `json:"role"`
	WrappedKeys map[string]string `json:"wrapped_keys"`
}

// UpdateMemberRequest はメンバー更新のリクエスト形式。role を省略した場合は何も変更しない。
type UpdateMemberRequest struct {
	Role *string `json:"role"`
}

// TeamResponse はチームのレスポンス形式。
type TeamResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at"`
}

// MemberResponse はメンバーシップのレスポンス形式。
type MemberResponse struct {
	ID        string `json:"id"`
	TeamID    string `json:"team_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AccessKeyResponse はラップ済み鍵のレスポンス形式。
type AccessKeyResponse struct {
	ID              string `json:"id"`
	MembershipID    string `json:"membership_id"`
	EncryptionKeyID string `json:"encryption_key_id"`
	WrappedKey      string `json:"wrapped_key"`
}

func toTeamResponse(t *domain.Team) TeamResponse {
	return TeamResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		CreatedAt: formatTime(t.CreatedAt),
	}
}

func toMemberResponse(m *domain.TeamMembership) MemberResponse {
	return MemberResponse{
		ID:        m.ID,
		TeamID:    m.TeamID,
		UserID:    m.UserID,
		Role:      string(m.Role),
		CreatedAt: formatTime(m.CreatedAt),
	}
}

// CreateTeam はチームを作成し、作成者を管理者として登録する。
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	team, err := h.teams.CreateTeam(r.Context(), actor, req.Name, domain.WrappedKeys(req.WrappedKeys))
	if err != nil {
		writeError(w, r, "CREATE_TEAM", "", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_TEAM", actor.UserID, team.ID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, toTeamResponse(team))
}

// ListTeams は所属チームを返す。
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.teams.ListTeams(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, "LIST_TEAMS", "", err)
		return
	}
	resp := make([]TeamResponse, len(teams))
	for i, t := range teams {
		resp[i] = toTeamResponse(t)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// GetTeam はチームを取得する。
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "team_id")
	if err != nil {
		writeError(w, r, "GET_TEAM", "", err)
		return
	}
	team, err := h.teams.RetrieveTeam(r.Context(), middleware.PrincipalFrom(r.Context()), teamID)
	if err != nil {
		writeError(w, r, "GET_TEAM", teamID, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toTeamResponse(team))
}

// ListMembers はチームのメンバーを返す。
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "team_id")
	if err != nil {
		writeError(w, r, "LIST_MEMBERS", "", err)
		return
	}
	members, err := h.members.ListMembers(r.Context(), middleware.PrincipalFrom(r.Context()), teamID)
	if err != nil {
		writeError(w, r, "LIST_MEMBERS", teamID, err)
		return
	}
	resp := make([]MemberResponse, len(members))
	for i, m := range members {
		resp[i] = toMemberResponse(m)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// AddMember はユーザーをチームに追加する。
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "team_id")
	if err != nil {
		writeError(w, r, "ADD_MEMBER", "", err)
		return
	}
	var req AddMemberRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := validateUserID(req.UserID); err != nil {
		writeError(w, r, "ADD_MEMBER", teamID, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	member, err := h.members.AddMember(r.Context(), actor, usecase.AddMemberInput{
		TeamID:        teamID,
		InvitedUserID: req.UserID,
		Role:          req.Role,
		WrappedKeys:   domain.WrappedKeys(req.WrappedKeys),
	})
	if err != nil {
		writeError(w, r, "ADD_MEMBER", teamID+"/"+req.UserID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ADD_MEMBER", actor.UserID, teamID+"/"+member.UserID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, toMemberResponse(member))
}

// UpdateMember はメンバーのロールを変更する。
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID, err := memberParams(r)
	if err != nil {
		writeError(w, r, "UPDATE_MEMBER", "", err)
		return
	}
	var req UpdateMemberRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	var role *domain.TeamRole
	if req.Role != nil {
		parsed, err := domain.ParseTeamRole(*req.Role)
		if err != nil {
			writeError(w, r, "UPDATE_MEMBER", teamID+"/"+userID, err)
			return
		}
		role = &parsed
	}
	actor := middleware.PrincipalFrom(r.Context())

	member, err := h.members.UpdateMember(r.Context(), actor, teamID, userID, role)
	if err != nil {
		writeError(w, r, "UPDATE_MEMBER", teamID+"/"+userID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_MEMBER", actor.UserID, teamID+"/"+userID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toMemberResponse(member))
}

// RemoveMember はメンバーをチームから外す。ラップ済み鍵も削除する。
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID, err := memberParams(r)
	if err != nil {
		writeError(w, r, "REMOVE_MEMBER", "", err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	if err := h.members.RemoveMember(r.Context(), actor, teamID, userID); err != nil {
		writeError(w, r, "REMOVE_MEMBER", teamID+"/"+userID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REMOVE_MEMBER", actor.UserID, teamID+"/"+userID, middleware.AuditSuccess)
	w.WriteHeader(http.StatusNoContent)
}

// MyAccessKeys は自分宛てのラップ済みチーム鍵を返す。
func (h *Handler) MyAccessKeys(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "team_id")
	if err != nil {
		writeError(w, r, "LIST_ACCESS_KEYS", "", err)
		return
	}
	keys, err := h.wrapping.MyAccessKeys(r.Context(), middleware.PrincipalFrom(r.Context()), teamID)
	if err != nil {
		writeError(w, r, "LIST_ACCESS_KEYS", teamID, err)
		return
	}
	resp := make([]AccessKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = AccessKeyResponse{
			ID:              k.ID,
			MembershipID:    k.MembershipID,
			EncryptionKeyID: k.EncryptionKeyID,
			WrappedKey:      k.WrappedKey,
		}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func memberParams(r *http.Request) (string, string, error) {
	teamID, err := uuidParam(r, "team_id")
	if err != nil {
		return "", "", err
	}
	userID := chi.URLParam(r, "user_id")
	if err := validateUserID(userID); err != nil {
		return "", "", err
	}
	return teamID, userID, nil
}
