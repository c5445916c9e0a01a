package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAndParseMissingChunksError(t *testing.T) {
	missing := []string{"aaaa", "bbbb", "cccc"}

	msg := FormatMissingChunksError(missing)
	assert.Equal(t, "缺失块: aaaa,bbbb,cccc", msg)

	got, ok := ParseMissingChunksError(msg)
	assert.True(t, ok)
	assert.Equal(t, missing, got)
}

func TestParseMissingChunksError_NotAMissingChunksMessage(t *testing.T) {
	_, ok := ParseMissingChunksError("some other failure")
	assert.False(t, ok)
}

func TestParseMissingChunksError_EmptyList(t *testing.T) {
	missing, ok := ParseMissingChunksError(FormatMissingChunksError(nil))
	assert.True(t, ok)
	assert.Empty(t, missing)
}

func TestVectorClockWireRoundTrip(t *testing.T) {
	vc := map[string]uint64{"p1": 3, "p2": 7}

	wire := VCToWire(vc)
	assert.Len(t, wire, 2)

	back := VCFromWire(wire)
	assert.Equal(t, uint64(3), back["p1"])
	assert.Equal(t, uint64(7), back["p2"])
}
