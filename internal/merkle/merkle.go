// Package merkle implements the Merkle State Index of spec §4.5: a
// deterministic commitment over the full set of (path, hash) pairs a peer
// holds for a folder, used so two peers can compare folder state in a
// single round trip before falling back to a per-file listing.
//
// The index keeps paths in sorted order with a google/btree.BTree (ordered
// index, O(log n) insert/delete) and computes its root by feeding the
// sorted leaves through a github.com/uplo-tech/merkletree.Tree, the same
// two libraries uplo-tech-uplo's storage-obligation Merkle proofs are built
// on (see modules/host/storageobligations.go). Sorting by path before
// hashing, rather than hashing in arrival order, is what makes the root
// independent of insertion order (spec §4.5 invariant).
package merkle

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/btree"
	"github.com/uplo-tech/merkletree"
)

// Root is a 32-byte digest committing to an Index's full contents.
type Root [32]byte

// String returns the hex encoding of r.
func (r Root) String() string { return hex.EncodeToString(r[:]) }

// entry is the btree element: ordered by Path.
type entry struct {
	Path string
	Hash string
}

func (e entry) Less(other btree.Item) bool {
	return e.Path < other.(entry).Path
}

// Index is the Merkle State Index for one folder: a path -> content-hash
// map that can produce a deterministic Root in O(n) regardless of the
// order entries were inserted.
type Index struct {
	tree *btree.BTree
}

// New returns an empty Index.
func New() *Index {
	return &Index{tree: btree.New(32)}
}

// Upsert records path's current content hash, replacing any prior value.
// hash is the same content hash used by internal/blockstore and
// internal/state.FileMetadata.Hash (the sentinel state.DirectoryHash for
// directories).
func (idx *Index) Upsert(path, hash string) {
	idx.tree.ReplaceOrInsert(entry{Path: path, Hash: hash})
}

// Remove drops path from the index, e.g. on deletion or rename-away.
func (idx *Index) Remove(path string) {
	idx.tree.Delete(entry{Path: path})
}

// Len returns the number of paths currently indexed.
func (idx *Index) Len() int {
	return idx.tree.Len()
}

// Get returns path's indexed hash, if present.
func (idx *Index) Get(path string) (string, bool) {
	item := idx.tree.Get(entry{Path: path})
	if item == nil {
		return "", false
	}

	return item.(entry).Hash, true
}

// Entries returns every (path, hash) pair in ascending path order.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, 0, idx.tree.Len())

	idx.tree.Ascend(func(item btree.Item) bool {
		e := item.(entry)
		out = append(out, Entry{Path: e.Path, Hash: e.Hash})
		return true
	})

	return out
}

// Entry is the exported (path, hash) pair returned by Entries.
type Entry struct {
	Path string
	Hash string
}

// leafHash commits to one (path, hash) pair, so the root changes if either
// a path's content hash changes or its set membership changes.
func leafHash(path, hash string) []byte {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(hash))

	return h.Sum(nil)
}

// Root computes the Merkle root over every indexed (path, hash) pair in
// ascending path order. An empty Index has the root of the empty tree.
func (idx *Index) Root() Root {
	tree := merkletree.New(sha256.New())

	idx.tree.Ascend(func(item btree.Item) bool {
		e := item.(entry)
		tree.Push(leafHash(e.Path, e.Hash))
		return true
	})

	var root Root
	copy(root[:], tree.Root())

	return root
}
