package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceKeyRoundTrip(t *testing.T) {
	for _, id := range []string{"bob", "odd:id", "100%", "a%3Ab"} {
		k := GenPresenceKey(id)
		got, err := ParsePresenceKey(k)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	_, err := ParsePresenceKey("u:bob")
	assert.Error(t, err)
	_, err = ParsePresenceKey("p:")
	assert.Error(t, err)
}

func TestUserKeyRoundTrip(t *testing.T) {
	got, err := ParseUserKey(GenUserKey("john"))
	require.NoError(t, err)
	assert.Equal(t, "john", got)
}

func TestMessageKeysSortByTime(t *testing.T) {
	a := GenMessageKey("bob", 9, 1, "z")
	b := GenMessageKey("bob", 10, 0, "a")
	assert.Less(t, a, b)
	assert.Less(t, GenMessageKey("bob", 9, 1, "z"), GenMessageKey("bob", 9, 2, "a"))
	assert.NotEqual(t, GenMessageKey("bob", 9, 1, "x"), GenMessageKey("bob", 9, 1, "y"))
	assert.Equal(t, "m:bob:00000000000000000009:000001:x%3Ay", GenMessageKey("bob", 9, 1, "x:y"))
	assert.Equal(t, "m:bob:", GenMessagePrefix("bob"))
	assert.Equal(t, "m:a%3Ab:", GenMessagePrefix("a:b"))
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("p;"), PrefixUpperBound([]byte("p:")))
	assert.Equal(t, []byte{0x02}, PrefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, PrefixUpperBound([]byte{0xff}))
}
