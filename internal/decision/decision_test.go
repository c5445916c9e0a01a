package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foldersync/foldersync/internal/clock"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/state"
)

func live(hash string, vc clock.VectorClock) state.FileState {
	return state.FileState{Metadata: &state.FileMetadata{Hash: hash, VectorClock: vc}}
}

func deleted(vc clock.VectorClock) state.FileState {
	return state.FileState{Deletion: &state.DeletionRecord{VectorClock: vc}}
}

func TestDecide_AbsentAbsent(t *testing.T) {
	assert.Equal(t, Skip, Decide(state.FileState{}, state.FileState{}, config.ModeTwoWay))
}

func TestDecide_AbsentExists(t *testing.T) {
	assert.Equal(t, Download, Decide(state.FileState{}, live("h", clock.VectorClock{"p2": 1}), config.ModeTwoWay))
}

func TestDecide_AbsentDeleted(t *testing.T) {
	assert.Equal(t, Skip, Decide(state.FileState{}, deleted(clock.VectorClock{"p2": 1}), config.ModeTwoWay))
}

func TestDecide_ExistsAbsent(t *testing.T) {
	assert.Equal(t, Upload, Decide(live("h", clock.VectorClock{"p1": 1}), state.FileState{}, config.ModeTwoWay))
}

func TestDecide_BothExist_SameHash(t *testing.T) {
	local := live("h", clock.VectorClock{"p1": 3})
	remote := live("h", clock.VectorClock{"p2": 9})
	assert.Equal(t, Skip, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_BothExist_LocalBehind(t *testing.T) {
	local := live("h1", clock.VectorClock{"p1": 1, "p2": 1})
	remote := live("h2", clock.VectorClock{"p1": 2, "p2": 1})
	assert.Equal(t, Download, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_BothExist_LocalAhead(t *testing.T) {
	local := live("h2", clock.VectorClock{"p1": 2, "p2": 1})
	remote := live("h1", clock.VectorClock{"p1": 1, "p2": 1})
	assert.Equal(t, Upload, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_BothExist_EqualVCDifferentHashIsConflict(t *testing.T) {
	local := live("h1", clock.VectorClock{"p1": 1})
	remote := live("h2", clock.VectorClock{"p1": 1})
	assert.Equal(t, Conflict, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_BothExist_ConcurrentIsConflict(t *testing.T) {
	local := live("h1", clock.VectorClock{"p1": 2, "p2": 1})
	remote := live("h2", clock.VectorClock{"p1": 1, "p2": 2})
	assert.Equal(t, Conflict, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_ExistsLocal_DeletedRemote_TombstoneAhead(t *testing.T) {
	local := live("h", clock.VectorClock{"p1": 1})
	remote := deleted(clock.VectorClock{"p1": 2, "p2": 1})
	assert.Equal(t, DeleteLocal, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_ExistsLocal_DeletedRemote_TombstoneStale(t *testing.T) {
	local := live("h", clock.VectorClock{"p1": 2})
	remote := deleted(clock.VectorClock{"p1": 1})
	assert.Equal(t, Upload, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_DeletedLocal_ExistsRemote_TombstoneAhead(t *testing.T) {
	local := deleted(clock.VectorClock{"p1": 2, "p2": 1})
	remote := live("h", clock.VectorClock{"p2": 1})
	assert.Equal(t, DeleteRemote, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_DeletedLocal_ExistsRemote_Resurrection(t *testing.T) {
	local := deleted(clock.VectorClock{"p1": 1})
	remote := live("h", clock.VectorClock{"p1": 2})
	assert.Equal(t, Download, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_DeletedDeleted(t *testing.T) {
	local := deleted(clock.VectorClock{"p1": 1})
	remote := deleted(clock.VectorClock{"p2": 1})
	assert.Equal(t, Skip, Decide(local, remote, config.ModeTwoWay))
}

func TestDecide_UploadOnlyMasksDownloadAndDeleteLocal(t *testing.T) {
	assert.Equal(t, Skip, Decide(state.FileState{}, live("h", nil), config.ModeUploadOnly))

	local := live("h", clock.VectorClock{"p1": 1})
	remote := deleted(clock.VectorClock{"p1": 2})
	assert.Equal(t, Skip, Decide(local, remote, config.ModeUploadOnly))
}

func TestDecide_DownloadOnlyMasksUploadAndDeleteRemote(t *testing.T) {
	assert.Equal(t, Skip, Decide(live("h", nil), state.FileState{}, config.ModeDownloadOnly))

	local := deleted(clock.VectorClock{"p1": 2})
	remote := live("h", clock.VectorClock{"p1": 1})
	assert.Equal(t, Skip, Decide(local, remote, config.ModeDownloadOnly))
}
