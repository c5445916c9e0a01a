package blockstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	return New(config.NewAppPaths(t.TempDir()), nil)
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello world")
	hash := hashOf(data)

	require.NoError(t, s.Put(hash, data))
	assert.True(t, s.Has(hash))

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPut_RejectsHashMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.Put("deadbeef", []byte("hello"))
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.False(t, s.Has("deadbeef"))
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_Idempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("repeat me")
	hash := hashOf(data)

	require.NoError(t, s.Put(hash, data))
	require.NoError(t, s.Put(hash, data))

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestHasMany(t *testing.T) {
	s := newTestStore(t)
	data := []byte("abc")
	hash := hashOf(data)
	require.NoError(t, s.Put(hash, data))

	result := s.HasMany([]string{hash, "missing"})
	assert.True(t, result[hash])
	assert.False(t, result["missing"])
}

func TestPut_ConcurrentSameHash(t *testing.T) {
	s := newTestStore(t)
	data := []byte("concurrent payload")
	hash := hashOf(data)

	var wg sync.WaitGroup
	errs := make([]error, 8)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			errs[i] = s.Put(hash, data)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutReader(t *testing.T) {
	s := newTestStore(t)
	data := []byte("via reader")

	hash, err := s.PutReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hashOf(data), hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
