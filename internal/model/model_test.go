package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleBasic, ParseRole(""))
	assert.Equal(t, RoleBasic, ParseRole("Admin"))
	assert.Equal(t, RoleBasic, ParseRole("root"))
	assert.True(t, RoleBasic.Valid())
	assert.False(t, Role("root").Valid())
}

func TestTaskJSON(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	task := Task{ID: "t1", Body: "buy milk", UserID: "u1", CreatedAt: created, UpdatedAt: created}

	raw, err := json.Marshal(task)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "u1", out["userId"])
	assert.NotContains(t, out, "user")

	task.User = &User{ID: "u1", Username: "alice", Email: "a@example.com", Password: "hash", Role: RoleBasic}
	raw, err = json.Marshal(&task)
	require.NoError(t, err)
	out = nil
	require.NoError(t, json.Unmarshal(raw, &out))
	user := out["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "firstName")
}

func TestUserProfileOmitsPassword(t *testing.T) {
	u := &User{ID: "u1", Username: "alice", Password: "hash", Role: RoleAdmin}
	raw, err := json.Marshal(u.Profile())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hash")
	assert.Contains(t, string(raw), `"role":"admin"`)
}
