package usage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*Limiter, *MemStore) {
	store := NewMemStore()
	return NewLimiter(store, DefaultRules()), store
}

// seedEvents inserts count events for (subject, operation) at the given time.
func seedEvents(t *testing.T, store *MemStore, subject, operation string, count int, at time.Time) {
	t.Helper()
	for i := 0; i < count; i++ {
		err := store.Insert(context.Background(), &Event{
			Subject:    subject,
			Operation:  operation,
			OccurredAt: at.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestCheck_FreshSubject(t *testing.T) {
	l, _ := newTestLimiter()

	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 5, dec.Remaining)
	assert.Equal(t, 5, dec.Limit)
	assert.False(t, dec.Unlimited)
}

func TestCheck_CountsEventsInWindow(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 3, time.Now().Add(-10*time.Second))

	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 2, dec.Remaining)
}

func TestCheck_AtLimit(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 5, time.Now().Add(-10*time.Second))

	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.False(t, dec.Admitted)
	assert.Equal(t, 0, dec.Remaining)
}

func TestCheck_ExpiredEventsNotCounted(t *testing.T) {
	l, store := newTestLimiter()

	// 5 events just past the 60s window must not count.
	seedEvents(t, store, "user-1", OpGenerateAvatar, 5, time.Now().Add(-66*time.Second))

	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 5, dec.Remaining)
}

func TestCheck_SubjectsIndependent(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 5, time.Now().Add(-5*time.Second))

	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.False(t, dec.Admitted)

	dec, err = l.Check(context.Background(), "user-2", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 5, dec.Remaining)
}

func TestCheck_OperationsIndependent(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 5, time.Now().Add(-5*time.Second))

	dec, err := l.Check(context.Background(), "user-1", OpDownloadAvatar, TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 10, dec.Remaining)
}

func TestCheck_ElevatedTierRule(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 5, time.Now().Add(-5*time.Second))

	// 5 events exhaust base but not elevated.
	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierElevated)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 20, dec.Limit)
	assert.Equal(t, 15, dec.Remaining)
}

func TestCheck_UnknownTierFallsBackToFirstRule(t *testing.T) {
	l, _ := newTestLimiter()

	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, Tier("trial"))
	require.NoError(t, err)
	// First declared rule for generate-avatar is base {60s, 5}.
	assert.Equal(t, 5, dec.Limit)
	assert.Equal(t, 5, dec.Remaining)
}

func TestCheck_UnknownOperationAdmitsUnbounded(t *testing.T) {
	l, store := newTestLimiter()

	dec, err := l.Check(context.Background(), "user-1", "nonexistent-op", TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.True(t, dec.Unlimited)
	assert.Equal(t, math.MaxInt, dec.Remaining)
	assert.Equal(t, 0, store.Len(), "check must not write events")
}

func TestCheck_ResetAtIsOneWindowOut(t *testing.T) {
	l, _ := newTestLimiter()

	before := time.Now()
	dec, err := l.Check(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	after := time.Now()
	require.NoError(t, err)

	assert.False(t, dec.ResetAt.Before(before.Add(60*time.Second)))
	assert.False(t, dec.ResetAt.After(after.Add(60*time.Second)))
}

func TestAdmit_AllowedHasNoSideEffect(t *testing.T) {
	l, store := newTestLimiter()

	dec, err := l.Admit(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
	assert.Equal(t, 0, store.Len(), "admit must not record events")
}

func TestAdmit_RejectedReturnsStructuredError(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 5, time.Now().Add(-10*time.Second))

	dec, err := l.Admit(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	require.Error(t, err)
	assert.False(t, dec.Admitted)

	var rej *LimitExceededError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, OpGenerateAvatar, rej.Operation)
	assert.Equal(t, TierBase, rej.Tier)
	assert.Equal(t, dec.ResetAt, rej.ResetAt)

	// Retry delay is ResetAt − now with ResetAt one window out from the
	// check, so it lands just under the window length.
	assert.Greater(t, rej.RetryAfter, 59*time.Second)
	assert.LessOrEqual(t, rej.RetryAfter, 60*time.Second)
}

func TestRecord_OccurredAtBounded(t *testing.T) {
	l, store := newTestLimiter()

	before := time.Now()
	event, err := l.Record(context.Background(), "user-1", OpGenerateAvatar)
	after := time.Now()
	require.NoError(t, err)

	assert.False(t, event.OccurredAt.Before(before))
	assert.False(t, event.OccurredAt.After(after))
	assert.Equal(t, 1, store.Len())
}

func TestRecord_CostAndMetadata(t *testing.T) {
	l, _ := newTestLimiter()

	event, err := l.Record(context.Background(), "user-1", OpGenerateAvatar,
		WithCost(0.0023),
		WithMetadata(map[string]string{"card_id": "abc"}))
	require.NoError(t, err)

	require.NotNil(t, event.Cost)
	assert.InDelta(t, 0.0023, *event.Cost, 1e-9)
	assert.JSONEq(t, `{"card_id":"abc"}`, string(event.Metadata))
}

func TestRecord_ThenCheckDecrementsRemaining(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		dec, err := l.Admit(context.Background(), "user-1", OpGenerateAvatar, TierBase)
		require.NoError(t, err, "request %d should be admitted", i+1)
		assert.Equal(t, 5-i, dec.Remaining)

		_, err = l.Record(context.Background(), "user-1", OpGenerateAvatar)
		require.NoError(t, err)
	}

	_, err := l.Admit(context.Background(), "user-1", OpGenerateAvatar, TierBase)
	var rej *LimitExceededError
	require.ErrorAs(t, err, &rej)
}

func TestSnapshot_CoversAllOperations(t *testing.T) {
	l, store := newTestLimiter()
	seedEvents(t, store, "user-1", OpGenerateAvatar, 2, time.Now().Add(-5*time.Second))

	snap, err := l.Snapshot(context.Background(), "user-1", TierBase)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, 3, snap[OpGenerateAvatar].Remaining)
	assert.Equal(t, 10, snap[OpDownloadAvatar].Remaining)
}
