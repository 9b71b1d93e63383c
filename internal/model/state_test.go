package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPruneProcessedTTL(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	state := NewPersistedState()
	state.Processed["fresh"] = now.Add(-1 * time.Hour).UnixMilli()
	state.Processed["stale"] = now.Add(-25 * time.Hour).UnixMilli()
	state.Processed["broken"] = 0

	state.PruneProcessed(24*time.Hour, 0, now)

	require.Contains(t, state.Processed, "fresh")
	require.NotContains(t, state.Processed, "stale")
	require.NotContains(t, state.Processed, "broken")
}

func TestPruneProcessedMaxItems(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	state := NewPersistedState()
	state.Processed["oldest"] = now.Add(-3 * time.Hour).UnixMilli()
	state.Processed["middle"] = now.Add(-2 * time.Hour).UnixMilli()
	state.Processed["newest"] = now.Add(-1 * time.Hour).UnixMilli()

	state.PruneProcessed(24*time.Hour, 2, now)

	require.Len(t, state.Processed, 2)
	require.Contains(t, state.Processed, "newest")
	require.Contains(t, state.Processed, "middle")
	require.NotContains(t, state.Processed, "oldest")
}

func TestPrunePending(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	state := NewPersistedState()
	state.Pending["1001"] = PendingOrder{StepIndex: 1, TS: now.Add(-1 * time.Hour).UnixMilli()}
	state.Pending["1002"] = PendingOrder{StepIndex: 2, TS: now.Add(-48 * time.Hour).UnixMilli()}

	state.PrunePending(24*time.Hour, now)

	require.Contains(t, state.Pending, "1001")
	require.NotContains(t, state.Pending, "1002")
}

func TestWorkflowNormalizeAndValidate(t *testing.T) {
	w := WorkflowConfig{StartStatus: 6, Flow: []int{723333, 89199}}
	w.Normalize()
	require.Equal(t, 89199, w.FinalStatus)
	require.Equal(t, DateFieldDueDate, w.DateField)
	require.NoError(t, w.Validate())

	empty := WorkflowConfig{StartStatus: 6}
	empty.Normalize()
	require.ErrorIs(t, empty.Validate(), ErrInvalidWorkflow)
}
