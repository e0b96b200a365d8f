package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/usecase"
)

var editor = principal("editor", domain.CapEditForm)

func TestCreateForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.createTeam(t, "alice", "Support")

	form, err := f.forms.CreateForm(ctx, editor, usecase.CreateFormInput{
		Name:          " Contact ",
		Description:   "Reach us",
		RenderingCode: "<form/>",
		Active:        true,
		TeamIDs:       []string{team.ID, team.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Contact", form.Name)
	assert.Equal(t, []string{team.ID}, form.TeamIDs)

	got, err := f.forms.GetForm(ctx, editor, form.ID)
	require.NoError(t, err)
	assert.Equal(t, "<form/>", got.RenderingCode)
	assert.Equal(t, []string{team.ID}, got.TeamIDs)
}

func TestCreateForm_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.forms.CreateForm(ctx, principal("alice"), usecase.CreateFormInput{Name: "Contact"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.forms.CreateForm(ctx, editor, usecase.CreateFormInput{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.forms.CreateForm(ctx, editor, usecase.CreateFormInput{
		Name:    "Contact",
		TeamIDs: []string{"00000000-0000-0000-0000-000000000000"},
	})
	assert.ErrorIs(t, err, domain.ErrTeamNotFound)

	var count int64
	require.NoError(t, f.db.Table("forms").Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := f.createForm(t, "Contact")

	name := "Feedback"
	inactive := false
	updated, err := f.forms.UpdateForm(ctx, editor, form.ID, usecase.UpdateFormInput{Name: &name, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Feedback", updated.Name)
	assert.False(t, updated.Active)

	// 無効なフォームは公開側からは存在しないものとして扱う
	_, err = f.submissions.RetrieveForm(ctx, form.ID)
	assert.ErrorIs(t, err, domain.ErrFormUnavailable)

	got, err := f.forms.GetForm(ctx, editor, form.ID)
	require.NoError(t, err)
	assert.Equal(t, "Feedback", got.Name)

	_, err = f.forms.UpdateForm(ctx, editor, "00000000-0000-0000-0000-000000000000", usecase.UpdateFormInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetFormTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	support := f.createTeam(t, "alice", "Support")
	sales := f.createTeam(t, "bob", "Sales")
	form := f.createForm(t, "Contact", support.ID)

	updated, err := f.forms.SetFormTeams(ctx, editor, form.ID, []string{sales.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{sales.ID}, updated.TeamIDs)

	_, err = f.forms.SetFormTeams(ctx, editor, form.ID, []string{sales.ID, "missing"})
	assert.ErrorIs(t, err, domain.ErrTeamNotFound)

	got, err := f.forms.GetForm(ctx, editor, form.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{sales.ID}, got.TeamIDs)

	_, err = f.forms.SetFormTeams(ctx, principal("alice"), form.ID, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
