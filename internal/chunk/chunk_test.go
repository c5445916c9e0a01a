package chunk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int, seed int64) []byte {
	t.Helper()

	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	_, err := r.Read(buf)
	require.NoError(t, err)

	return buf
}

func TestSplit_ReconstructsExactly(t *testing.T) {
	data := randomBytes(t, 5*DefaultParams.Max, 1)

	chunks, err := Split(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, data, Reconstruct(chunks))
}

func TestSplit_ChunkSizesWithinBounds(t *testing.T) {
	data := randomBytes(t, 5*DefaultParams.Max, 2)

	chunks, err := Split(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		if i < len(chunks)-1 {
			// Only the final chunk may be shorter than Min.
			assert.GreaterOrEqual(t, len(c.Data), DefaultParams.Min)
		}

		assert.LessOrEqual(t, len(c.Data), DefaultParams.Max)
	}
}

func TestSplit_HashMatchesSHA256(t *testing.T) {
	data := randomBytes(t, 20000, 3)

	chunks, err := Split(bytes.NewReader(data))
	require.NoError(t, err)

	for _, c := range chunks {
		sum := sha256.Sum256(c.Data)
		assert.Equal(t, hex.EncodeToString(sum[:]), c.Hash)
	}
}

func TestSplit_Empty(t *testing.T) {
	chunks, err := Split(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// TestSplit_LocalEditOnlyPerturbsTail verifies the defining FastCDC property: appending
// bytes to the end of a file only changes the trailing chunk(s), leaving
// all earlier chunk hashes identical (spec §4.1(a)).
func TestSplit_LocalEditOnlyPerturbsTail(t *testing.T) {
	base := randomBytes(t, 3*DefaultParams.Max, 4)
	appended := append(append([]byte{}, base...), randomBytes(t, 4096, 5)...)

	baseChunks, err := Split(bytes.NewReader(base))
	require.NoError(t, err)

	appendedChunks, err := Split(bytes.NewReader(appended))
	require.NoError(t, err)

	require.NotEmpty(t, baseChunks)
	require.True(t, len(appendedChunks) >= len(baseChunks)-1)

	// All but (at most) the last base chunk must reappear unchanged.
	matching := 0
	for i := 0; i < len(baseChunks)-1 && i < len(appendedChunks); i++ {
		if baseChunks[i].Hash == appendedChunks[i].Hash {
			matching++
		} else {
			break
		}
	}

	assert.GreaterOrEqual(t, matching, len(baseChunks)-1)
}

func TestSplit_Deterministic(t *testing.T) {
	data := randomBytes(t, 50000, 6)

	c1, err := Split(bytes.NewReader(data))
	require.NoError(t, err)

	c2, err := Split(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, len(c1), len(c2))

	for i := range c1 {
		assert.Equal(t, c1[i].Hash, c2[i].Hash)
	}
}

func TestSplitWithParams_RejectsInvalid(t *testing.T) {
	_, err := SplitWithParams(bytes.NewReader([]byte("x")), Params{Min: 100, Avg: 50, Max: 10})
	assert.Error(t, err)
}
