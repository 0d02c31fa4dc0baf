package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModerationStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ModerationStatus
		want     bool
	}{
		{ModerationPending, ModerationApproved, true},
		{ModerationPending, ModerationRejected, true},
		{ModerationPending, ModerationHidden, false},
		{ModerationApproved, ModerationHidden, true},
		{ModerationApproved, ModerationRejected, false},
		{ModerationApproved, ModerationApproved, false},
		{ModerationRejected, ModerationApproved, false},
		{ModerationRejected, ModerationHidden, false},
		{ModerationHidden, ModerationApproved, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPublicStatusMirror(t *testing.T) {
	assert.True(t, ModerationApproved.PublicStatus().Visible())
	for _, s := range []ModerationStatus{ModerationPending, ModerationRejected, ModerationHidden} {
		assert.False(t, s.PublicStatus().Visible(), s.String())
	}
}

func TestParseRoundTrip(t *testing.T) {
	for role := range roleNames {
		parsed, err := ParseRole(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}
	for action := range enforcementActionNames {
		parsed, err := ParseEnforcementAction(action.String())
		require.NoError(t, err)
		assert.Equal(t, action, parsed)
	}

	_, err := ParseRole("owner")
	assert.Error(t, err)

	parsed, err := ParseAccountStatus("  Banned ")
	require.NoError(t, err)
	assert.Equal(t, StatusBanned, parsed)
}

func TestEnumJSON(t *testing.T) {
	user := User{ID: 3, Role: RoleModerator, Status: StatusBanned, PasswordHash: "secret"}
	data, err := json.Marshal(user)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"moderator"`)
	assert.Contains(t, string(data), `"status":"banned"`)
	assert.NotContains(t, string(data), "secret")

	var decoded struct {
		Action EnforcementAction `json:"action"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"remove_role"}`), &decoded))
	assert.Equal(t, ActionRemoveRole, decoded.Action)
	assert.Error(t, json.Unmarshal([]byte(`{"action":"kick"}`), &decoded))
}

func TestEnumScanValue(t *testing.T) {
	v, err := ModerationHidden.Value()
	require.NoError(t, err)
	assert.Equal(t, "hidden", v)

	var status ModerationStatus
	require.NoError(t, status.Scan([]byte("approved")))
	assert.Equal(t, ModerationApproved, status)
	assert.Error(t, status.Scan(42))

	_, err = Role(99).Value()
	assert.Error(t, err)
}
