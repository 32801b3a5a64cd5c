package kv

import (
	"context"
	"testing"

	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s Store, prefix Key) []Entry {
	t.Helper()
	var out []Entry
	for e, err := range s.List(context.Background(), prefix) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, Key{"registry", "active"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, Key{"registry", "active"}, []byte("a.model")))
	v, err := s.Get(ctx, Key{"registry", "active"})
	require.NoError(t, err)
	assert.Equal(t, []byte("a.model"), v)

	require.NoError(t, s.BatchSet(ctx, []Entry{
		{Key: Key{"registry", "history", "002"}, Value: []byte("b")},
		{Key: Key{"registry", "history", "001"}, Value: []byte("a")},
		{Key: Key{"registry", "historyx"}, Value: []byte("not under prefix")},
	}))

	entries := collect(t, s, Key{"registry", "history"})
	require.Len(t, entries, 2)
	assert.Equal(t, Key{"registry", "history", "001"}, entries[0].Key)
	assert.Equal(t, []byte("b"), entries[1].Value)

	assert.Len(t, collect(t, s, nil), 4)

	require.NoError(t, s.Delete(ctx, Key{"registry", "active"}))
	require.NoError(t, s.Delete(ctx, Key{"registry", "active"}))
	_, err = s.Get(ctx, Key{"registry", "active"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	val := []byte("abc")
	require.NoError(t, s.Set(ctx, Key{"k"}, val))
	val[0] = 'x'

	got, err := s.Get(ctx, Key{"k"})
	require.NoError(t, err)
	got[1] = 'y'

	again, err := s.Get(ctx, Key{"k"})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestBadgerInMemory(t *testing.T) {
	s, err := NewBadger(BadgerOptions{InMemory: true, Logger: &logging.NoOpLogger{}})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerOnDiskPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadger(BadgerOptions{Dir: dir, Logger: &logging.NoOpLogger{}})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Key{"registry", "active"}, []byte("m")))
	require.NoError(t, s.Close())

	s, err = NewBadger(BadgerOptions{Dir: dir, Logger: &logging.NoOpLogger{}})
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, Key{"registry", "active"})
	require.NoError(t, err)
	assert.Equal(t, []byte("m"), v)
}

func TestBadgerRequiresDir(t *testing.T) {
	_, err := NewBadger(BadgerOptions{})
	assert.Error(t, err)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "a:b:c", Key{"a", "b", "c"}.String())
	assert.Equal(t, Key{"a", "b"}, decodeKey([]byte("a:b")))
	assert.Nil(t, Key{}.prefixBytes())
}
