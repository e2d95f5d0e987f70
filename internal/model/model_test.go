package model

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIPKeepsMostRecentThirty(t *testing.T) {
	u := &User{}
	for i := 0; i < 45; i++ {
		u.RecordIP(fmt.Sprintf("10.0.0.%d", i))
	}

	require.Len(t, u.LastIPs, MaxRecentIPs)
	assert.Equal(t, "10.0.0.15", u.LastIPs[0])
	assert.Equal(t, "10.0.0.44", u.LastIPs[MaxRecentIPs-1])
}

func TestRecallIsOneShot(t *testing.T) {
	m := &Message{ID: "m1", UserID: "u1", Content: "hello"}

	assert.True(t, m.Recall())
	assert.True(t, m.Recalled)
	assert.Equal(t, "", m.Content)
	require.NotNil(t, m.OriginalContent)
	assert.Equal(t, "hello", *m.OriginalContent)

	assert.False(t, m.Recall())
	assert.Equal(t, "hello", *m.OriginalContent)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "u1", m.UserID)
}

func TestMessageViewDisclosure(t *testing.T) {
	author := &User{ID: "u1", Username: "alice", PasswordHash: "secret", Role: RoleMember}
	m := &Message{ID: "m1", UserID: "u1", Content: "hi"}
	m.Recall()

	hidden := m.View(author, false)
	assert.Nil(t, hidden.OriginalContent)
	require.NotNil(t, hidden.User)
	assert.Equal(t, "alice", hidden.User.Username)

	shown := m.View(author, true)
	require.NotNil(t, shown.OriginalContent)
	assert.Equal(t, "hi", *shown.OriginalContent)

	raw, err := json.Marshal(shown)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestMutedAt(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	u := &User{MutedUntil: &until}

	assert.True(t, u.MutedAt(now))
	assert.False(t, u.MutedAt(now.Add(2*time.Minute)))
	assert.False(t, (&User{}).MutedAt(now))
}

func TestMentionCheckMarkDeduplicates(t *testing.T) {
	now := time.Now()
	mc := &MentionCheck{UserID: "u1", CheckedMessageIDs: []string{"a"}}

	mc.Mark([]string{"a", "b", "b", ""}, now)

	assert.Equal(t, []string{"a", "b"}, mc.CheckedMessageIDs)
	assert.Equal(t, now, mc.LastUpdated)
}

func TestSettingsNeedsApproval(t *testing.T) {
	assert.False(t, DefaultSettings().NeedsApproval())
	assert.True(t, Settings{RegistrationOpen: true, RequireApproval: true}.NeedsApproval())
	assert.False(t, Settings{RegistrationOpen: false, RequireApproval: true}.NeedsApproval())
}

func TestVerificationCodeExpiry(t *testing.T) {
	now := time.Now()
	code := VerificationCode{CreatedAt: now}

	assert.False(t, code.ExpiredAt(now.Add(9*time.Minute)))
	assert.True(t, code.ExpiredAt(now.Add(VerificationCodeTTL)))
}
