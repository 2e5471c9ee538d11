package store

import (
	"context"
	"os"
	"testing"

	"chatrelay/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFromHash(t *testing.T) {
	r, ok := recordFromHash(map[string]string{"user_id": "bob", "presence": "xa", "last_active": "42"})
	require.True(t, ok)
	assert.Equal(t, rec("bob", models.PresenceXA, 42), r)

	_, ok = recordFromHash(map[string]string{})
	assert.False(t, ok)
}

// Runs against a live server when CHATRELAY_TEST_REDIS_URL is set.
func TestRedisPresence(t *testing.T) {
	url := os.Getenv("CHATRELAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHATRELAY_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, url, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	p := NewRedisPresence(client, "test:"+uuid.NewString()+":")
	require.NoError(t, p.Upsert(ctx, rec("a", models.PresenceAway, 60)))
	require.NoError(t, p.Upsert(ctx, rec("a", models.PresenceAway, 60)))
	require.NoError(t, p.Upsert(ctx, rec("b", models.PresenceOnline, 95)))
	require.NoError(t, p.Touch(ctx, "ghost", 1))

	all, err := p.List(ctx, "b")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].UserID)

	changed, err := p.ExpireInactive(ctx, "", 70)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, changed)
	changed, err = p.ExpireInactive(ctx, "", 70)
	require.NoError(t, err)
	assert.Empty(t, changed)

	conn, err := p.ListConnected(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, conn)

	require.NoError(t, p.Delete(ctx, "a"))
	require.NoError(t, p.Delete(ctx, "b"))
	all, err = p.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}
