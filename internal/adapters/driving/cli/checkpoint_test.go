package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

func TestCheckpointCmd_List(t *testing.T) {
	cps := &mockCheckpoints{infos: []domain.CheckpointInfo{
		{BatchID: "batch_b", CreatedAt: time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC), Path: "/ck/retry_batch_b.ckpt"},
		{BatchID: "batch_a", CreatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), Path: "/ck/retry_batch_a.ckpt"},
	}}
	setupServices(t, &Services{Checkpoints: cps})

	out, err := execute(t, "checkpoint", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-02 09:30:00  batch_b  /ck/retry_batch_b.ckpt")
	assert.Less(t, strings.Index(out, "batch_b"), strings.Index(out, "batch_a"))
}

func TestCheckpointCmd_ListEmpty(t *testing.T) {
	setupServices(t, &Services{Checkpoints: &mockCheckpoints{}})

	out, err := execute(t, "checkpoint", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No pending checkpoints.")
}

func TestCheckpointCmd_Sweep(t *testing.T) {
	setupServices(t, &Services{Checkpoints: &mockCheckpoints{swept: 3}})

	out, err := execute(t, "checkpoint", "sweep")

	require.NoError(t, err)
	assert.Contains(t, out, "Removed 3 expired checkpoint(s).")
}

func TestCheckpointCmd_Clear(t *testing.T) {
	cps := &mockCheckpoints{}
	setupServices(t, &Services{Checkpoints: cps})

	out, err := execute(t, "checkpoint", "clear", "batch_a")

	require.NoError(t, err)
	assert.Equal(t, "batch_a", cps.cleared)
	assert.Contains(t, out, "Removed 1 checkpoint(s) of batch_a.")
}

func TestCheckpointCmd_ClearRequiresBatchID(t *testing.T) {
	setupServices(t, &Services{Checkpoints: &mockCheckpoints{}})

	_, err := execute(t, "checkpoint", "clear")

	assert.Error(t, err)
}
