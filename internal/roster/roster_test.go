package roster

import (
	"testing"

	"meshchat/native/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func users(ids ...string) []domain.Participant {
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Participant{ID: id})
	}
	return out
}

func TestReplace_OrdersAndNotifies(t *testing.T) {
	var seen [][]domain.Participant
	r := New(func(p []domain.Participant) { seen = append(seen, p) })

	r.Replace(users("alice", "bob", "carol"))

	require.Len(t, seen, 1)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 0, r.IndexOf("alice"))
	assert.Equal(t, 1, r.IndexOf("bob"))
	assert.Equal(t, 2, r.IndexOf("carol"))
	assert.Equal(t, "bob", seen[0][1].DisplayLabel)
	assert.Equal(t, 1, seen[0][1].JoinOrder)
}

func TestReplace_DedupesKeepingFirst(t *testing.T) {
	r := New(nil)

	r.Replace(users("alice", "bob", "alice", "", "carol"))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 0, r.IndexOf("alice"))
	assert.Equal(t, 2, r.IndexOf("carol"))
}

func TestReplace_IsWholesale(t *testing.T) {
	r := New(nil)
	r.Replace(users("alice", "bob"))
	r.Replace(users("bob"))

	assert.False(t, r.Contains("alice"))
	assert.Equal(t, -1, r.IndexOf("alice"))
	assert.Equal(t, 0, r.IndexOf("bob"))
}

func TestParticipants_ReturnsCopy(t *testing.T) {
	r := New(nil)
	r.Replace(users("alice"))

	p := r.Participants()
	p[0].ID = "mallory"

	assert.True(t, r.Contains("alice"))
	assert.Equal(t, "alice", r.Participants()[0].ID)
}
