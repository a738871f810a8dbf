package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/database/types/enum"
	"github.com/joinwarden/joinwarden/internal/setup/config"
	"github.com/joinwarden/joinwarden/internal/worker/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStore = errors.New("store unavailable")

// fakeEventStore is an in-memory stand-in for the event model.
type fakeEventStore struct {
	mu sync.Mutex

	snapshot    []*types.Event
	snapshotErr error
	pruneErr    error

	// release, when set, blocks GetModerationSnapshot until closed;
	// entered is closed once the first blocked read has started.
	release     chan struct{}
	entered     chan struct{}
	enteredOnce sync.Once

	marked       []types.Member
	deleted      []types.Member
	inserted     []*types.Event
	pruneCutoffs []time.Time
}

func (s *fakeEventStore) GetModerationSnapshot(_ context.Context) ([]*types.Event, error) {
	if s.release != nil {
		if s.entered != nil {
			s.enteredOnce.Do(func() { close(s.entered) })
		}
		<-s.release
	}
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	return s.snapshot, nil
}

func (s *fakeEventStore) MarkNotified(_ context.Context, members []types.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marked = append(s.marked, members...)
	return nil
}

func (s *fakeEventStore) DeleteMembers(_ context.Context, members []types.Member) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = append(s.deleted, members...)
	return int64(len(members)), nil
}

func (s *fakeEventStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pruneErr != nil {
		return 0, s.pruneErr
	}

	s.pruneCutoffs = append(s.pruneCutoffs, cutoff)
	return 0, nil
}

func (s *fakeEventStore) Insert(_ context.Context, event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserted = append(s.inserted, event)
	return nil
}

func (s *fakeEventStore) InsertBatch(_ context.Context, events []*types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserted = append(s.inserted, events...)
	return nil
}

func (s *fakeEventStore) auditEntries() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*types.Event
	for _, event := range s.inserted {
		if event.Operation == enum.OperationBackgroundTask {
			entries = append(entries, event)
		}
	}
	return entries
}

type fakePolicyStore struct {
	chats map[int64]struct{}
	err   error
}

func (s *fakePolicyStore) GetChatsWithBanPolicy(_ context.Context) (map[int64]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chats, nil
}

func workerConfig() *config.Worker {
	return &config.Worker{
		RunInterval:          60,
		StartupDelay:         0,
		MaxConcurrentActions: 4,
	}
}

func TestRunFullCycle(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{
		snapshot: []*types.Event{
			joinRequest(1, 100, 25*time.Minute, false),
			joinRequest(2, 100, 7*time.Hour, true),
			joinRequest(3, 200, 7*time.Hour, true),
		},
	}
	policies := &fakePolicyStore{chats: map[int64]struct{}{100: {}}}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	counts, err := worker.Run(t.Context(), reconcile.TriggerTimer)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Counts{ToNotify: 1, ToBan: 1, ToDenyAndRemove: 1}, counts)

	// Member 1 was reminded and marked.
	assert.Equal(t, []types.Member{{UserID: 1, ChatID: 100}}, events.marked)

	// Member 2 completed the ban sequence and got a durable marker.
	assert.Equal(t, []types.Member{{UserID: 2, ChatID: 100}}, gateway.banned)
	markers := 0
	for _, event := range events.inserted {
		if event.Operation == enum.OperationIsBanned {
			markers++
			assert.Equal(t, types.Member{UserID: 2, ChatID: 100}, event.Member())
		}
	}
	assert.Equal(t, 1, markers)

	// Member 3 was declined and deleted.
	assert.Equal(t, []types.Member{{UserID: 3, ChatID: 200}}, gateway.declined)
	assert.Equal(t, []types.Member{{UserID: 3, ChatID: 200}}, events.deleted)

	// One pruning sweep at the retention cutoff, one audit entry.
	require.Len(t, events.pruneCutoffs, 1)
	audits := events.auditEntries()
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Message, "notified 1, banned 1, removed 1")
}

func TestRunDryHasNoSideEffects(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{
		snapshot: []*types.Event{
			joinRequest(1, 100, 25*time.Minute, false),
			joinRequest(2, 100, 7*time.Hour, true),
		},
	}
	policies := &fakePolicyStore{}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	counts, err := worker.Run(t.Context(), reconcile.TriggerDry)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Counts{ToNotify: 1, ToDenyAndRemove: 1}, counts)

	assert.Empty(t, gateway.sent)
	assert.Empty(t, gateway.declined)
	assert.Empty(t, events.marked)
	assert.Empty(t, events.deleted)
	assert.Empty(t, events.inserted)
	assert.Empty(t, events.pruneCutoffs)
}

func TestRunRejectsConcurrentTrigger(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	policies := &fakePolicyStore{}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = worker.Run(t.Context(), reconcile.TriggerDry)
	}()

	// Wait for the first run to take the guard and block in the snapshot.
	<-events.entered

	_, err := worker.Run(t.Context(), reconcile.TriggerDry)
	require.ErrorIs(t, err, reconcile.ErrAlreadyRunning)

	close(events.release)
	<-done

	// The guard is released after the run, so the next trigger proceeds.
	_, err = worker.Run(t.Context(), reconcile.TriggerDry)
	require.NoError(t, err)
}

func TestRunSnapshotErrorReleasesGuard(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{snapshotErr: errStore}
	policies := &fakePolicyStore{}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	_, err := worker.Run(t.Context(), reconcile.TriggerTimer)
	require.ErrorIs(t, err, errStore)
	assert.Empty(t, events.inserted)

	events.snapshotErr = nil
	_, err = worker.Run(t.Context(), reconcile.TriggerTimer)
	require.NoError(t, err)
}

func TestRunPolicyErrorAborts(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{
		snapshot: []*types.Event{joinRequest(1, 100, 25*time.Minute, false)},
	}
	policies := &fakePolicyStore{err: errStore}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	_, err := worker.Run(t.Context(), reconcile.TriggerTimer)
	require.ErrorIs(t, err, errStore)
	assert.Empty(t, gateway.sent)
}

func TestRunPruneFailureStillWritesAudit(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{
		snapshot: []*types.Event{joinRequest(1, 100, 25*time.Minute, false)},
		pruneErr: errStore,
	}
	policies := &fakePolicyStore{}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	_, err := worker.Run(t.Context(), reconcile.TriggerTimer)
	require.NoError(t, err)

	require.Len(t, events.auditEntries(), 1)
}

func TestRunAlertsOnBanFailures(t *testing.T) {
	t.Parallel()

	member := types.Member{UserID: 1, ChatID: 100}
	events := &fakeEventStore{
		snapshot: []*types.Event{joinRequest(1, 100, 7*time.Hour, true)},
	}
	policies := &fakePolicyStore{chats: map[int64]struct{}{100: {}}}
	gateway := newFakeGateway()
	gateway.failBan[member] = struct{}{}

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	_, err := worker.Run(t.Context(), reconcile.TriggerTimer)
	require.NoError(t, err)

	// The hazard reaches both the admin channel and the audit entry, and
	// no ban marker is persisted for the incomplete sequence.
	require.Len(t, gateway.alerts, 1)
	assert.Contains(t, gateway.alerts[0], "failed to ban but was approved")

	audits := events.auditEntries()
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Message, "failed to ban but was approved")

	for _, event := range events.inserted {
		assert.NotEqual(t, enum.OperationIsBanned, event.Operation)
	}
}

func TestRunEmptySnapshot(t *testing.T) {
	t.Parallel()

	events := &fakeEventStore{}
	policies := &fakePolicyStore{}
	gateway := newFakeGateway()

	worker := reconcile.New(events, policies, gateway, nil, workerConfig(), zap.NewNop())

	counts, err := worker.Run(t.Context(), reconcile.TriggerTimer)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Counts{}, counts)

	// An empty run still leaves its audit trail.
	require.Len(t, events.auditEntries(), 1)
	assert.Contains(t, events.auditEntries()[0].Message, "notified 0, banned 0, removed 0")
}
