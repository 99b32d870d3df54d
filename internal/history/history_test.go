package history

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppend_RecentNewestFirst(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Append("netreserve", "add_network", map[string]string{"net_addr": "10.0.0.0/24"}, nil))
	require.NoError(t, s.Append("ipreserve", "add_ip", map[string]string{"ip_addr": "10.0.0.5"}, errors.New("IP already allocated")))

	entries, err := s.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "add_ip", entries[0].Function)
	assert.Equal(t, "IP already allocated", entries[0].Error)
	assert.Equal(t, uint64(2), entries[0].Seq)
	assert.Equal(t, "add_network", entries[1].Function)
	assert.Empty(t, entries[1].Error)
	assert.NotEmpty(t, entries[1].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestRecent_Limit(t *testing.T) {
	s := openStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append("dns", "add_record", map[string]string{"name": "a"}, nil))
	}

	entries, err := s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestOpen_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append("dns", "add_zone", map[string]string{"zone": "test"}, nil))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "test", entries[0].Args["zone"])
}
