package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formularium/formularium-backend/internal/domain"
)

func TestCreateTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aliceKey := f.addActiveKey(t, "alice")

	team := f.createTeam(t, "alice", "  Customer Support & Billing ", aliceKey)
	assert.Equal(t, "Customer Support & Billing", team.Name)
	assert.Equal(t, "customer-support-and-billing", team.Slug)
	assert.NotEmpty(t, team.ID)

	m, err := f.membershipRepo.FindByTeamAndUser(ctx, team.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, domain.TeamRoleAdmin, m.Role)

	accessKeys, err := f.accessKeyRepo.FindByMembership(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, accessKeys, 1)
	assert.Equal(t, aliceKey.ID, accessKeys[0].EncryptionKeyID)

	got, err := f.teams.RetrieveTeam(ctx, principal("alice"), team.ID)
	require.NoError(t, err)
	assert.Equal(t, team.Slug, got.Slug)
}

func TestCreateTeam_RequiresCapability(t *testing.T) {
	f := newFixture(t)

	_, err := f.teams.CreateTeam(context.Background(), principal("alice"), "Support", nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateTeam_InvalidName(t *testing.T) {
	f := newFixture(t)
	creator := principal("alice", domain.CapCreateTeam)

	for _, name := range []string{"", "   ", string(make([]rune, 101))} {
		_, err := f.teams.CreateTeam(context.Background(), creator, name, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidName)
	}
}

func TestCreateTeam_AtomicWithFirstMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveKey(t, "alice")

	// 有効な鍵のラップ済み鍵がなければチームも作られない
	_, err := f.teams.CreateTeam(ctx, principal("alice", domain.CapCreateTeam), "Support", nil)
	require.ErrorIs(t, err, domain.ErrMissingKeyWrap)

	teams, err := f.teams.ListTeams(ctx, principal("alice"))
	require.NoError(t, err)
	assert.Empty(t, teams)

	var count int64
	require.NoError(t, f.db.Table("teams").Count(&count).Error)
	assert.Zero(t, count)
}

func TestRetrieveTeam_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.teams.RetrieveTeam(context.Background(), principal("alice"), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrTeamNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListTeams(t *testing.T) {
	f := newFixture(t)
	support := f.createTeam(t, "alice", "Support")
	sales := f.createTeam(t, "bob", "Sales")
	f.addMember(t, "bob", sales, "alice", domain.TeamRoleMember)

	teams, err := f.teams.ListTeams(context.Background(), principal("alice"))
	require.NoError(t, err)
	ids := []string{}
	for _, team := range teams {
		ids = append(ids, team.ID)
	}
	assert.ElementsMatch(t, []string{support.ID, sales.ID}, ids)
}
