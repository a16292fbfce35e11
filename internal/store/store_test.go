package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndAllPendingOrdering(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.Insert("s1", []byte(`[]`), 1)
	require.NoError(t, err)
	id2, err := s.Insert("s1", []byte(`[]`), 2)
	require.NoError(t, err)

	rows := s.AllPending()
	require.Len(t, rows, 2)
	require.Equal(t, id1, rows[0].ID)
	require.Equal(t, id2, rows[1].ID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Insert("s1", []byte(`[]`), 1)
	require.NoError(t, err)
	require.NoError(t, s.Delete(id))
	require.NoError(t, s.Delete(id)) // idempotent
	require.Equal(t, 0, s.Count())
}

func TestIncrementAndEvictStale(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Insert("s1", []byte(`[]`), 1)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.IncrementAttempts(id))
	}
	evicted, err := s.EvictStale(10)
	require.NoError(t, err)
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, s.Count())
}

// TestDurabilityAcrossRestart covers spec invariant 6: a batch persisted
// before a simulated crash is re-read, under its original session_id,
// after the store is reopened in a fresh process.
func TestDurabilityAcrossRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	s1, err := Open(dir)
	require.NoError(t, err)
	id, err := s1.Insert("s-prev", []byte(`[{"ts":1}]`), 1)
	require.NoError(t, err)
	require.NoError(t, s1.Close()) // simulate process death before upload

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	rows := s2.AllPending()
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].ID)
	require.Equal(t, "s-prev", rows[0].SessionID)
}

func TestPendingFor(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert("s-prev", []byte(`[]`), 1)
	require.NoError(t, err)
	_, err = s.Insert("s-new", []byte(`[]`), 1)
	require.NoError(t, err)

	prev := s.PendingFor("s-prev")
	require.Len(t, prev, 1)
	require.Equal(t, "s-prev", prev[0].SessionID)
}
