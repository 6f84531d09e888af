package ops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/stash/internal/log"
)

func TestTrackerLifecycle(t *testing.T) {
	var terminals []Terminal
	tr := NewTracker(log.Null(), func(term Terminal) { terminals = append(terminals, term) })

	tr.Start("a", KindDownload)
	op, ok := tr.Get("a", KindDownload)
	require.True(t, ok)
	assert.Equal(t, PhaseStarted, op.Phase)

	tr.Progress("a", KindDownload, 50, "1MB/s")
	op, ok = tr.Get("a", KindDownload)
	require.True(t, ok)
	assert.Equal(t, PhaseInProgress, op.Phase)
	assert.Equal(t, 50.0, op.Percent)
	assert.Equal(t, "1MB/s", op.Speed)

	tr.Complete("a", KindDownload, "")
	_, ok = tr.Get("a", KindDownload)
	assert.False(t, ok, "terminal removes the record")
	require.Len(t, terminals, 1)
	assert.Empty(t, terminals[0].Err)
	assert.Equal(t, "a", terminals[0].Op.EntityID)
}

func TestTrackerIdempotentCompletion(t *testing.T) {
	var terminals []Terminal
	tr := NewTracker(log.Null(), func(term Terminal) { terminals = append(terminals, term) })

	// Completed with no matching started record: tolerated, same end state.
	assert.NotPanics(t, func() { tr.Complete("fast", KindMetadata, "") })
	_, ok := tr.Get("fast", KindMetadata)
	assert.False(t, ok)
	require.Len(t, terminals, 1)
	assert.Equal(t, "fast", terminals[0].Op.EntityID)
	assert.Equal(t, KindMetadata, terminals[0].Op.Kind)
}

func TestTrackerKindsAreIndependent(t *testing.T) {
	tr := NewTracker(log.Null(), nil)

	tr.Start("s1", KindSync)
	tr.Start("s1", KindDownload)

	tr.Complete("s1", KindSync, "")
	assert.False(t, tr.InFlight("s1", KindSync))
	assert.True(t, tr.InFlight("s1", KindDownload), "download on same entity unaffected by sync terminal")
}

func TestTrackerProgressWithoutStart(t *testing.T) {
	tr := NewTracker(log.Null(), nil)

	tr.Progress("x", KindDownload, 10, "")
	op, ok := tr.Get("x", KindDownload)
	require.True(t, ok, "missed start is tolerated")
	assert.Equal(t, PhaseInProgress, op.Phase)
}

func TestTrackerFailReportsError(t *testing.T) {
	var terminals []Terminal
	tr := NewTracker(log.Null(), func(term Terminal) { terminals = append(terminals, term) })

	tr.Start("a", KindSync)
	tr.Fail("a", KindSync, "auth expired")

	require.Len(t, terminals, 1)
	assert.Equal(t, "auth expired", terminals[0].Err)
	assert.False(t, terminals[0].Synthesized)
}

func TestTrackerSnapshotIsImmutable(t *testing.T) {
	tr := NewTracker(log.Null(), nil)
	tr.Start("a", KindDownload)

	snap := tr.Snapshot()
	tr.Progress("a", KindDownload, 80, "")

	assert.Equal(t, PhaseStarted, snap[Key{EntityID: "a", Kind: KindDownload}].Phase,
		"snapshot taken before the mutation must not change")
}

func TestWatchdogExpiresStuckOperations(t *testing.T) {
	var terminals []Terminal
	tr := NewTracker(log.Null(), func(term Terminal) { terminals = append(terminals, term) })

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := base
	tr.now = func() time.Time { return now }

	tr.Start("stuck", KindSync)
	now = base.Add(5 * time.Minute)
	tr.Start("fresh", KindSync)

	stale := tr.ExpireStale(2 * time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, "stuck", stale[0].EntityID)

	assert.False(t, tr.InFlight("stuck", KindSync))
	assert.True(t, tr.InFlight("fresh", KindSync))

	require.Len(t, terminals, 1)
	assert.True(t, terminals[0].Synthesized)
	assert.NotEmpty(t, terminals[0].Err)

	assert.Empty(t, tr.ExpireStale(0), "zero timeout disables the watchdog")
}
