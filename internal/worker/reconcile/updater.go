package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"go.uber.org/zap"
)

// Updater applies the consequences of a completed run back to the event
// log: resolved members are deleted, delivered reminders are marked, and
// confirmed bans get their durable marker.
type Updater struct {
	events EventStore
	logger *zap.Logger
}

// NewUpdater creates an Updater writing through the given event store.
func NewUpdater(events EventStore, logger *zap.Logger) *Updater {
	return &Updater{
		events: events,
		logger: logger.Named("updater"),
	}
}

// Apply persists the outcome of one run's action batches.
func (u *Updater) Apply(ctx context.Context, c *Classification, result *ExecutionResult, now time.Time) error {
	if _, err := u.events.DeleteMembers(ctx, result.Removed); err != nil {
		return fmt.Errorf("failed to delete resolved members: %w", err)
	}

	if err := u.events.MarkNotified(ctx, result.Notified); err != nil {
		return fmt.Errorf("failed to mark notified members: %w", err)
	}

	if len(result.Banned) > 0 {
		markers := make([]*types.Event, 0, len(result.Banned))
		for _, member := range result.Banned {
			markers = append(markers, types.NewBanMarker(member, c.Usernames[member], now))
		}

		if err := u.events.InsertBatch(ctx, markers); err != nil {
			return fmt.Errorf("failed to insert ban markers: %w", err)
		}
	}

	return nil
}

// Prune deletes non-audit records older than the retention window. It runs
// after the main sequence and its failure never rolls that sequence back.
func (u *Updater) Prune(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-RetentionWindow)

	pruned, err := u.events.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune old events: %w", err)
	}

	if pruned > 0 {
		u.logger.Info("Pruned old event records",
			zap.Int64("pruned", pruned),
			zap.Time("cutoff", cutoff))
	}

	return pruned, nil
}

// WriteAudit appends the background_task entry summarizing a run.
func (u *Updater) WriteAudit(ctx context.Context, result *ExecutionResult, elapsed time.Duration, now time.Time) error {
	if err := u.events.Insert(ctx, types.NewAuditEntry(auditText(result, elapsed), now)); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

// auditText renders the free-text summary stored in the audit entry.
func auditText(result *ExecutionResult, elapsed time.Duration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "reconciliation finished in %s: notified %d, banned %d, removed %d",
		elapsed.Round(time.Millisecond), len(result.Notified), len(result.Banned), len(result.Removed))

	for _, failure := range result.BanFailures {
		b.WriteString("; ")
		b.WriteString(failure.Render())
	}

	return b.String()
}
