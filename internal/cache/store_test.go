package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)

	require.NoError(t, s.Put("ui.theme", "mocha"))
	v, ok := s.Get("ui.theme")
	require.True(t, ok)
	require.Equal(t, "mocha", v)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)
	require.NoError(t, s.Load(map[string]string{"a": "1"}))
	require.NoError(t, s.Put("b", "2"))
	_, _ = s.Get("a")
	require.NoError(t, s.Put("c", "3"))

	require.Equal(t, 2, s.Len())
	_, ok := s.Get("b")
	require.False(t, ok)
	_, ok = s.Get("a")
	require.True(t, ok)
}

func TestStoreClosedRejectsWrites(t *testing.T) {
	s, err := New(0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("k%d", i), "v"))
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Zero(t, s.Len())
	require.ErrorIs(t, s.Put("late", "v"), ErrClosed)
	require.ErrorIs(t, s.Load(map[string]string{"late": "v"}), ErrClosed)
	_, ok := s.Get("k0")
	require.False(t, ok)
}
