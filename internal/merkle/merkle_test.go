package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_RootIndependentOfInsertionOrder(t *testing.T) {
	a := New()
	a.Upsert("b.txt", "hash-b")
	a.Upsert("a.txt", "hash-a")
	a.Upsert("c.txt", "hash-c")

	b := New()
	b.Upsert("c.txt", "hash-c")
	b.Upsert("a.txt", "hash-a")
	b.Upsert("b.txt", "hash-b")

	assert.Equal(t, a.Root(), b.Root())
}

func TestIndex_RootChangesOnContentChange(t *testing.T) {
	idx := New()
	idx.Upsert("a.txt", "hash-1")
	before := idx.Root()

	idx.Upsert("a.txt", "hash-2")
	after := idx.Root()

	assert.NotEqual(t, before, after)
}

func TestIndex_RootChangesOnRemove(t *testing.T) {
	idx := New()
	idx.Upsert("a.txt", "hash-1")
	before := idx.Root()

	idx.Remove("a.txt")
	after := idx.Root()

	assert.NotEqual(t, before, after)
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_EmptyRootIsStable(t *testing.T) {
	assert.Equal(t, New().Root(), New().Root())
}

func TestIndex_GetAndEntries(t *testing.T) {
	idx := New()
	idx.Upsert("b.txt", "hash-b")
	idx.Upsert("a.txt", "hash-a")

	hash, ok := idx.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, "hash-a", hash)

	_, ok = idx.Get("missing.txt")
	assert.False(t, ok)

	entries := idx.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Path)
	assert.Equal(t, "b.txt", entries[1].Path)
}
