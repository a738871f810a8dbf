package reconcile_test

import (
	"testing"
	"time"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/worker/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 8, 12, 12, 0, 0, 0, time.UTC)

func joinRequest(userID, chatID int64, age time.Duration, notified bool) *types.Event {
	event := types.NewJoinRequest(types.Member{UserID: userID, ChatID: chatID}, "tester", testNow.Add(-age))
	if notified {
		yes := true
		event.Notified = &yes
	}
	return event
}

func banMarker(userID, chatID int64, age time.Duration) *types.Event {
	return types.NewBanMarker(types.Member{UserID: userID, ChatID: chatID}, "tester", testNow.Add(-age))
}

func TestClassifyNotify(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 25*time.Minute, false),
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, c.ToNotify)
	assert.Empty(t, c.ToBan)
	assert.Empty(t, c.ToDenyAndRemove)
}

func TestClassifyYoungRequestUntouched(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 15*time.Minute, false),
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Empty(t, c.ToNotify)
	assert.Empty(t, c.ToBan)
	assert.Empty(t, c.ToDenyAndRemove)
}

func TestClassifyThresholdsInclusive(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, reconcile.NotifyAfter, false),
		joinRequest(2, 100, reconcile.ResolveAfter, true),
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, c.ToNotify)
	assert.Equal(t, []types.Member{{UserID: 2, ChatID: 100}}, c.ToDenyAndRemove)
}

func TestClassifyJustUnderThresholds(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, reconcile.NotifyAfter-time.Second, false),
		joinRequest(2, 100, reconcile.ResolveAfter-time.Second, true),
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Empty(t, c.ToNotify)
	assert.Empty(t, c.ToBan)
	assert.Empty(t, c.ToDenyAndRemove)
}

func TestClassifyExpiredWithoutBanPolicy(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 7*time.Hour, true),
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Empty(t, c.ToNotify)
	assert.Empty(t, c.ToBan)
	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, c.ToDenyAndRemove)
}

func TestClassifyExpiredWithBanPolicy(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 7*time.Hour, true),
	}
	banPolicy := map[int64]struct{}{100: {}}

	c := reconcile.Classify(events, banPolicy, testNow)

	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, c.ToBan)
	assert.Empty(t, c.ToDenyAndRemove)
}

func TestClassifyAlreadyBannedFallsBackToRemoval(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 7*time.Hour, true),
		banMarker(1, 100, 48*time.Hour),
	}
	banPolicy := map[int64]struct{}{100: {}}

	c := reconcile.Classify(events, banPolicy, testNow)

	assert.Empty(t, c.ToBan)
	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, c.ToDenyAndRemove)
	assert.Contains(t, c.Banned, types.Member{UserID: 1, ChatID: 100})
}

func TestClassifyBanMarkerOrderIndependent(t *testing.T) {
	t.Parallel()

	// The marker arrives after the join request in the snapshot; the two-pass
	// collection must still see it before the expired request is classified.
	events := []*types.Event{
		joinRequest(1, 100, 7*time.Hour, true),
		banMarker(1, 100, time.Hour),
	}
	banPolicy := map[int64]struct{}{100: {}}

	forward := reconcile.Classify(events, banPolicy, testNow)
	reversed := reconcile.Classify([]*types.Event{events[1], events[0]}, banPolicy, testNow)

	assert.Equal(t, forward.ToBan, reversed.ToBan)
	assert.Equal(t, forward.ToDenyAndRemove, reversed.ToDenyAndRemove)
	assert.Empty(t, forward.ToBan)
}

func TestClassifyBannedMemberStillReminded(t *testing.T) {
	t.Parallel()

	// A ban marker does not suppress the reminder for an unreminded join
	// request; only the ban branch consults the marker set.
	events := []*types.Event{
		joinRequest(1, 100, 25*time.Minute, false),
		banMarker(1, 100, 48*time.Hour),
	}
	banPolicy := map[int64]struct{}{100: {}}

	c := reconcile.Classify(events, banPolicy, testNow)

	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, c.ToNotify)
}

func TestClassifySetsDisjoint(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 25*time.Minute, false),
		joinRequest(2, 100, 7*time.Hour, true),
		joinRequest(3, 200, 7*time.Hour, true),
		joinRequest(4, 100, 5*time.Minute, false),
		// Duplicate records for member 2; only the first counts.
		joinRequest(2, 100, 8*time.Hour, true),
		banMarker(5, 100, 24*time.Hour),
		joinRequest(5, 100, 7*time.Hour, true),
	}
	banPolicy := map[int64]struct{}{100: {}}

	c := reconcile.Classify(events, banPolicy, testNow)

	seen := make(map[types.Member]int)
	for _, member := range c.ToNotify {
		seen[member]++
	}
	for _, member := range c.ToBan {
		seen[member]++
	}
	for _, member := range c.ToDenyAndRemove {
		seen[member]++
	}

	for member, count := range seen {
		assert.Equal(t, 1, count, "member %s classified more than once", member)
	}

	assert.Len(t, c.ToNotify, 1)
	assert.Len(t, c.ToBan, 1)
	assert.Len(t, c.ToDenyAndRemove, 2)
}

func TestClassifyPure(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 25*time.Minute, false),
		joinRequest(2, 100, 7*time.Hour, true),
		banMarker(3, 100, 24*time.Hour),
	}
	banPolicy := map[int64]struct{}{100: {}}

	first := reconcile.Classify(events, banPolicy, testNow)
	second := reconcile.Classify(events, banPolicy, testNow)

	assert.Equal(t, first, second)

	// The snapshot itself must be untouched.
	require.Nil(t, events[0].Notified)
	assert.Equal(t, testNow.Add(-25*time.Minute), events[0].At)
}

func TestClassifySkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		{UserID: 1, ChatID: 100, At: testNow.Add(-time.Hour)}, // missing operation
		joinRequest(0, 100, time.Hour, false),                 // missing user
		joinRequest(2, 0, time.Hour, false),                   // missing chat
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Empty(t, c.ToNotify)
	assert.Empty(t, c.ToBan)
	assert.Empty(t, c.ToDenyAndRemove)
}

func TestClassifyUsernamesCollected(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 25*time.Minute, false),
	}

	c := reconcile.Classify(events, nil, testNow)

	assert.Equal(t, "tester", c.Usernames[types.Member{UserID: 1, ChatID: 100}])
}

func TestCounts(t *testing.T) {
	t.Parallel()

	events := []*types.Event{
		joinRequest(1, 100, 25*time.Minute, false),
		joinRequest(2, 100, 7*time.Hour, true),
		joinRequest(3, 200, 7*time.Hour, true),
	}
	banPolicy := map[int64]struct{}{100: {}}

	counts := reconcile.Classify(events, banPolicy, testNow).Counts()

	assert.Equal(t, reconcile.Counts{ToNotify: 1, ToBan: 1, ToDenyAndRemove: 1}, counts)
}
