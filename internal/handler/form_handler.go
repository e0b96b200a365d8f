package handler

import (
	"net/http"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/internal/usecase"
	"github.com/formularium/formularium-backend/pkg/httputil"
)

// CreateFormRequest はフォーム作成のリクエスト形式。
type CreateFormRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	RenderingCode string   `json:"rendering_code"`
	Active        bool     `json:"active"`
	TeamIDs       []string `json:"team_ids"`
}

// UpdateFormRequest はフォーム更新のリクエスト形式。省略したフィールドは変更しない。
type UpdateFormRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// SetFormTeamsRequest は受信チーム置き換えのリクエスト形式。
type SetFormTeamsRequest struct {
	TeamIDs []string `json:"team_ids"`
}

// FormResponse はフォームのレスポンス形式。
type FormResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	RenderingCode string   `json:"rendering_code"`
	Active        bool     `json:"active"`
	TeamIDs       []string `json:"team_ids"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func toFormResponse(f *domain.Form) FormResponse {
	teamIDs := f.TeamIDs
	if teamIDs == nil {
		teamIDs = []string{}
	}
	return FormResponse{
		ID:            f.ID,
		Name:          f.Name,
		Description:   f.Description,
		RenderingCode: f.RenderingCode,
		Active:        f.Active,
		TeamIDs:       teamIDs,
		CreatedAt:     formatTime(f.CreatedAt),
		UpdatedAt:     formatTime(f.UpdatedAt),
	}
}

// CreateForm はフォームを作成する。
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	var req CreateFormRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	form, err := h.forms.CreateForm(r.Context(), actor, usecase.CreateFormInput{
		Name:          req.Name,
		Description:   req.Description,
		RenderingCode: req.RenderingCode,
		Active:        req.Active,
		TeamIDs:       req.TeamIDs,
	})
	if err != nil {
		writeError(w, r, "CREATE_FORM", "", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_FORM", actor.UserID, form.ID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusCreated, toFormResponse(form))
}

// GetForm はフォームを取得する。無効なフォームも返す。
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	formID, err := uuidParam(r, "form_id")
	if err != nil {
		writeError(w, r, "GET_FORM", "", err)
		return
	}
	form, err := h.forms.GetForm(r.Context(), middleware.PrincipalFrom(r.Context()), formID)
	if err != nil {
		writeError(w, r, "GET_FORM", formID, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toFormResponse(form))
}

// UpdateForm はフォームを更新する。
func (h *Handler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	formID, err := uuidParam(r, "form_id")
	if err != nil {
		writeError(w, r, "UPDATE_FORM", "", err)
		return
	}
	var req UpdateFormRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	form, err := h.forms.UpdateForm(r.Context(), actor, formID, usecase.UpdateFormInput{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		writeError(w, r, "UPDATE_FORM", formID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_FORM", actor.UserID, form.ID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toFormResponse(form))
}

// SetFormTeams はフォームの受信チームを置き換える。
func (h *Handler) SetFormTeams(w http.ResponseWriter, r *http.Request) {
	formID, err := uuidParam(r, "form_id")
	if err != nil {
		writeError(w, r, "SET_FORM_TEAMS", "", err)
		return
	}
	var req SetFormTeamsRequest
	if err := httputil.Decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor := middleware.PrincipalFrom(r.Context())

	form, err := h.forms.SetFormTeams(r.Context(), actor, formID, req.TeamIDs)
	if err != nil {
		writeError(w, r, "SET_FORM_TEAMS", formID, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "SET_FORM_TEAMS", actor.UserID, form.ID, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toFormResponse(form))
}
