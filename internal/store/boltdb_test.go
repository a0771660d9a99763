package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSectionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, s.SaveSection("analyzer", in))

	var out map[string]int
	ok, err := s.LoadSection("analyzer", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)
}

func TestLoadSectionMissing(t *testing.T) {
	s := newTestStore(t)
	var out map[string]int
	ok, err := s.LoadSection("nope", &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCorruptSectionIsIsolated(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSection("good", map[string]int{"a": 1}))

	// corrompe só uma seção direto no bucket
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bState).Put([]byte("bad"), []byte("{not json"))
	}))

	var out map[string]int
	_, err := s.LoadSection("bad", &out)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "corrupt section bad"))

	ok, err := s.LoadSection("good", &out)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEventsOrderAndTrim(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.PutEvent(EventRecord{
			TS: base.Add(time.Duration(i) * time.Minute), EntityID: "light.x", NewState: "on",
		}))
	}

	recent, err := s.RecentEvents(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// crescente, terminando no mais novo
	require.Equal(t, base.Add(2*time.Minute), recent[0].TS)
	require.Equal(t, base.Add(4*time.Minute), recent[2].TS)

	n, err := s.TrimEvents(base.Add(2 * time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	all, err := s.RecentEvents(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestPutEventSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEvent(EventRecord{TS: ts, EntityID: "a"}))
	require.NoError(t, s.PutEvent(EventRecord{TS: ts, EntityID: "b"}))

	all, err := s.RecentEvents(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAnomaliesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		when := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.PutAnomaly(Anomaly{
			ID:       when.Format(time.RFC3339Nano) + "-x",
			When:     when,
			EntityID: "light.x",
			Type:     "unusual_activity",
			Source:   "statistical",
		}))
	}

	got, err := s.ListAnomalies(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, base.Add(2*time.Hour), got[0].When)
	require.Equal(t, base.Add(time.Hour), got[1].When)
}
