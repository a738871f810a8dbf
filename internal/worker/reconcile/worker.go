package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/setup/config"
	"github.com/joinwarden/joinwarden/internal/telegram"
	"github.com/joinwarden/joinwarden/internal/worker/core"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// ErrAlreadyRunning signals that a trigger arrived while a run was in
// progress. The trigger is dropped, not queued.
var ErrAlreadyRunning = errors.New("reconciliation run already in progress")

// Trigger indicates what kind of invocation requested a run.
type Trigger int

const (
	// TriggerTimer is a periodic invocation: the startup delay applies and
	// real side effects are performed.
	TriggerTimer Trigger = iota
	// TriggerDry skips the delay and all side effects, returning only the
	// computed counts. Used for tests and manual status checks.
	TriggerDry
)

// EventStore is the slice of the event log the engine reads and writes.
type EventStore interface {
	GetModerationSnapshot(ctx context.Context) ([]*types.Event, error)
	MarkNotified(ctx context.Context, members []types.Member) error
	DeleteMembers(ctx context.Context, members []types.Member) (int64, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Insert(ctx context.Context, event *types.Event) error
	InsertBatch(ctx context.Context, events []*types.Event) error
}

// PolicyStore exposes the single policy fact the engine consumes.
type PolicyStore interface {
	GetChatsWithBanPolicy(ctx context.Context) (map[int64]struct{}, error)
}

// Worker owns the reconciliation cadence, the single-flight reentrancy
// guard, and top-level error containment. At most one run is active per
// process; a losing trigger returns ErrAlreadyRunning immediately.
type Worker struct {
	events   EventStore
	policies PolicyStore
	gateway  telegram.Gateway
	executor *Executor
	updater  *Updater
	reporter *core.StatusReporter
	logger   *zap.Logger

	running      atomic.Bool
	interval     time.Duration
	startupDelay time.Duration
	now          func() time.Time
}

// New creates a reconciliation worker. statusClient may be nil, in which
// case heartbeat reporting is disabled.
func New(
	events EventStore,
	policies PolicyStore,
	gateway telegram.Gateway,
	statusClient rueidis.Client,
	cfg *config.Worker,
	logger *zap.Logger,
) *Worker {
	var reporter *core.StatusReporter
	if statusClient != nil {
		reporter = core.NewStatusReporter(statusClient, "reconcile", logger)
	}

	return &Worker{
		events:       events,
		policies:     policies,
		gateway:      gateway,
		executor:     NewExecutor(gateway, cfg.MaxConcurrentActions, logger),
		updater:      NewUpdater(events, logger),
		reporter:     reporter,
		logger:       logger.Named("reconcile"),
		interval:     time.Duration(cfg.RunInterval) * time.Second,
		startupDelay: time.Duration(cfg.StartupDelay) * time.Millisecond,
		now:          time.Now,
	}
}

// Start begins the worker's main loop and blocks until the context is
// cancelled. Run failures are contained here: they are forwarded to the
// admin channel and never crash the process.
func (w *Worker) Start(ctx context.Context) {
	if w.reporter != nil {
		w.logger.Info("Reconciliation worker started",
			zap.String("workerID", w.reporter.GetWorkerID()),
			zap.Duration("interval", w.interval))
		w.reporter.Start(ctx)
		defer w.reporter.Stop()
	} else {
		w.logger.Info("Reconciliation worker started", zap.Duration("interval", w.interval))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Context cancelled, stopping worker")
			return
		case <-ticker.C:
			w.runContained(ctx)
		}
	}
}

// runContained executes one timer-driven run and absorbs its failure.
func (w *Worker) runContained(ctx context.Context) {
	if w.reporter != nil {
		w.reporter.UpdateStatus("Reconciling")
		defer w.reporter.UpdateStatus("Idle")
	}

	_, err := w.Run(ctx, TriggerTimer)

	switch {
	case err == nil:
		if w.reporter != nil {
			w.reporter.SetHealthy(true)
		}
	case errors.Is(err, ErrAlreadyRunning):
		w.logger.Warn("Skipped run, previous run still in progress")
	default:
		if w.reporter != nil {
			w.reporter.SetHealthy(false)
		}

		w.logger.Error("Reconciliation run failed", zap.Error(err))

		alert := fmt.Sprintf("reconciliation run failed: %v", err)
		if alertErr := w.gateway.SendAdminAlert(ctx, alert); alertErr != nil {
			w.logger.Error("Failed to alert admin about run failure", zap.Error(alertErr))
		}
	}
}

// Run performs one reconciliation cycle: classify, act, update, prune,
// audit. Dry runs stop after classification and perform no side effects.
// The reentrancy guard is released in all paths, including panics.
func (w *Worker) Run(ctx context.Context, trigger Trigger) (counts Counts, err error) {
	if !w.running.CompareAndSwap(false, true) {
		return Counts{}, ErrAlreadyRunning
	}
	defer w.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciliation run panicked: %v", r)
		}
	}()

	if trigger == TriggerTimer && w.startupDelay > 0 {
		select {
		case <-time.After(w.startupDelay):
		case <-ctx.Done():
			return Counts{}, ctx.Err()
		}
	}

	started := w.now()

	snapshot, err := w.events.GetModerationSnapshot(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to read event snapshot: %w", err)
	}

	banPolicy, err := w.policies.GetChatsWithBanPolicy(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to read ban policy: %w", err)
	}

	classification := Classify(snapshot, banPolicy, started)
	counts = classification.Counts()

	if trigger == TriggerDry {
		return counts, nil
	}

	result := w.executor.Execute(ctx, classification)

	if len(result.BanFailures) > 0 {
		w.alertBanFailures(ctx, result.BanFailures)
	}

	if err := w.updater.Apply(ctx, classification, result, w.now()); err != nil {
		return counts, err
	}

	// Pruning is independent of the main sequence; its failure must not
	// block the audit entry for the work already performed.
	if _, err := w.updater.Prune(ctx, w.now()); err != nil {
		w.logger.Error("Pruning sweep failed", zap.Error(err))
	}

	if err := w.updater.WriteAudit(ctx, result, w.now().Sub(started), w.now()); err != nil {
		return counts, err
	}

	w.logger.Info("Reconciliation run completed",
		zap.Duration("elapsed", w.now().Sub(started)),
		zap.Int("notified", len(result.Notified)),
		zap.Int("banned", len(result.Banned)),
		zap.Int("removed", len(result.Removed)),
		zap.Int("banFailures", len(result.BanFailures)))

	return counts, nil
}

// alertBanFailures escalates approved-but-not-banned hazards. These are
// correctness issues, not transient errors, so the admin must see them.
func (w *Worker) alertBanFailures(ctx context.Context, failures []BanFailure) {
	lines := make([]string, 0, len(failures))
	for _, failure := range failures {
		lines = append(lines, failure.Render())
	}

	alert := "ban sequence incomplete for:\n" + strings.Join(lines, "\n")
	if err := w.gateway.SendAdminAlert(ctx, alert); err != nil {
		w.logger.Error("Failed to alert admin about ban failures", zap.Error(err))
	}
}
