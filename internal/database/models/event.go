package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joinwarden/joinwarden/internal/database/dbretry"
	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrNoAuditEntries indicates that no reconciliation run has been recorded yet.
var ErrNoAuditEntries = errors.New("no audit entries found")

// EventModel handles database operations for the append-only event log.
type EventModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewEvent creates a repository with database access for storing and
// retrieving event records.
func NewEvent(db *bun.DB, logger *zap.Logger) *EventModel {
	return &EventModel{
		db:     db,
		logger: logger.Named("db_event"),
	}
}

// Insert appends a single event record.
func (r *EventModel) Insert(ctx context.Context, event *types.Event) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(event).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

// InsertBatch appends multiple event records in one statement.
func (r *EventModel) InsertBatch(ctx context.Context, events []*types.Event) error {
	if len(events) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(&events).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert events: %w", err)
		}
		return nil
	})
}

// GetModerationSnapshot reads all records relevant to a reconciliation run:
// pending join requests and durable ban markers. The snapshot is taken once
// per run; concurrent writers are tolerated because later runs re-derive
// state from the full log.
func (r *EventModel) GetModerationSnapshot(ctx context.Context) ([]*types.Event, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Event, error) {
		var events []*types.Event

		err := r.db.NewSelect().
			Model(&events).
			Where("operation IN (?)", bun.In([]enum.Operation{
				enum.OperationWantsToJoin,
				enum.OperationIsBanned,
			})).
			Order("at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get moderation snapshot: %w", err)
		}

		return events, nil
	})
}

// MarkNotified sets the notified flag on the join request records of the
// given members. Only members whose reminder was actually delivered should
// be passed here; unmarked records are retried on the next cycle.
func (r *EventModel) MarkNotified(ctx context.Context, members []types.Member) error {
	if len(members) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewUpdate().
			Model((*types.Event)(nil)).
			Set("notified = ?", true).
			Where("operation = ?", enum.OperationWantsToJoin).
			Where("(user_id, chat_id) IN (?)", bun.In(memberPairs(members))).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark notified: %w", err)
		}
		return nil
	})
}

// DeleteMembers removes every event record belonging to the given members,
// resolving their pending state. Audit entries carry no member identity and
// are unaffected.
func (r *EventModel) DeleteMembers(ctx context.Context, members []types.Member) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		res, err := r.db.NewDelete().
			Model((*types.Event)(nil)).
			Where("operation != ?", enum.OperationBackgroundTask).
			Where("(user_id, chat_id) IN (?)", bun.In(memberPairs(members))).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to delete member events: %w", err)
		}

		affected, _ := res.RowsAffected()
		return affected, nil
	})
}

// PruneOlderThan deletes event records recorded before the cutoff.
// background_task audit entries are exempt regardless of age; they are the
// engine's durable operational history.
func (r *EventModel) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		res, err := r.db.NewDelete().
			Model((*types.Event)(nil)).
			Where("operation != ?", enum.OperationBackgroundTask).
			Where("at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to prune events: %w", err)
		}

		affected, _ := res.RowsAffected()
		return affected, nil
	})
}

// GetChatEvents retrieves all member events for one chat, oldest first.
func (r *EventModel) GetChatEvents(ctx context.Context, chatID int64) ([]*types.Event, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Event, error) {
		var events []*types.Event

		err := r.db.NewSelect().
			Model(&events).
			Where("chat_id = ?", chatID).
			Where("operation != ?", enum.OperationBackgroundTask).
			Order("at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chat events: %w", err)
		}

		return events, nil
	})
}

// GetLatestAudit returns the most recent reconciliation audit entry.
func (r *EventModel) GetLatestAudit(ctx context.Context) (*types.Event, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Event, error) {
		event := new(types.Event)

		err := r.db.NewSelect().
			Model(event).
			Where("operation = ?", enum.OperationBackgroundTask).
			Order("at DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNoAuditEntries
			}
			return nil, fmt.Errorf("failed to get latest audit entry: %w", err)
		}

		return event, nil
	})
}

// memberPairs converts members into (user_id, chat_id) tuples for IN clauses.
func memberPairs(members []types.Member) [][]int64 {
	pairs := make([][]int64, 0, len(members))
	for _, m := range members {
		pairs = append(pairs, []int64{m.UserID, m.ChatID})
	}
	return pairs
}
