package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Canonical(t *testing.T) {
	env := &Envelope{
		FormData:        "<b>a&b</b>",
		Timestamp:       EnvelopeTimestamp(time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.FixedZone("JST", 9*60*60))),
		PublicKeyServer: "server",
		FormID:          "form-1",
		FormName:        "Contact",
	}

	b, err := env.Canonical()
	require.NoError(t, err)

	want := `{"form_data":"<b>a&b</b>","timestamp":"2024-05-01T03:00:00.123456Z","public_key_server":"server","public_keys_recipients":[],"form_id":"form-1","form_name":"Contact"}`
	assert.Equal(t, want, string(b))
	assert.False(t, strings.HasSuffix(string(b), "\n"))
	assert.Nil(t, env.PublicKeysRecipients, "receiver must not be modified")
}

func TestCapabilitySet(t *testing.T) {
	set := NewCapabilitySet("can_edit_form", "can_create_team", "can_fly")

	assert.True(t, set.Has(CapEditForm))
	assert.True(t, set.Has(CapCreateTeam))
	assert.False(t, set.Has(Capability("can_fly")))
	assert.Equal(t, []string{"can_create_team", "can_edit_form"}, set.Names())

	var empty CapabilitySet
	assert.False(t, empty.Has(CapEditForm))
}

func TestPrincipal_Require(t *testing.T) {
	p := Principal{UserID: "alice", Capabilities: NewCapabilitySet("can_edit_form")}
	assert.NoError(t, p.Require(CapEditForm))
	assert.ErrorIs(t, p.Require(CapCreateTeam), ErrForbidden)

	// ユーザーIDのない主体は何もできない
	anonymous := Principal{Capabilities: NewCapabilitySet("can_edit_form")}
	assert.ErrorIs(t, anonymous.Require(CapEditForm), ErrForbidden)
}

func TestParseTeamRole(t *testing.T) {
	tests := []struct {
		in      string
		want    TeamRole
		wantErr error
	}{
		{"", TeamRoleMember, nil},
		{"member", TeamRoleMember, nil},
		{"admin", TeamRoleAdmin, nil},
		{"ADMIN", "", ErrInvalidRole},
		{"owner", "", ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTeamRole(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	kinds := map[error]error{
		ErrFormUnavailable:    ErrNotFound,
		ErrLastAdmin:          ErrInvariantViolation,
		ErrNoActiveSigningKey: ErrCryptoUnavailable,
		ErrInvalidSignature:   ErrMalformedInput,
	}
	for err, kind := range kinds {
		assert.True(t, errors.Is(err, kind), "%v should be %v", err, kind)
	}
	assert.False(t, errors.Is(ErrLastAdmin, ErrNotFound))
}
