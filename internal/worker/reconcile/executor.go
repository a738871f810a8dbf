package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/telegram"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// BanFailure records a ban sequence that did not complete. Approved marks
// the policy hazard: the join request was accepted but the ban step failed,
// so the member may be inside the chat without being banned.
type BanFailure struct {
	Member   types.Member
	Approved bool
	Err      error
}

// Render formats the failure for the admin alert and the audit entry.
func (f BanFailure) Render() string {
	if f.Approved {
		return fmt.Sprintf("failed to ban but was approved: %s", f.Member)
	}
	return fmt.Sprintf("failed to approve before ban: %s", f.Member)
}

// ExecutionResult aggregates the per-item outcomes of one run's action
// batches. Failures never abort a batch; each item succeeds or fails alone.
type ExecutionResult struct {
	// Notified members had their reminder delivered. Failed sends are
	// absent so their records stay unmarked and are retried next cycle.
	Notified []types.Member
	// Banned members completed the full approve-ban sequence.
	Banned []types.Member
	// Removed members had their join request declined. Decline failures
	// are masked: a declined and an already-withdrawn request look the
	// same from here, so both resolve the member.
	Removed []types.Member
	// BanFailures are incomplete ban sequences needing admin attention.
	BanFailures []BanFailure
}

// Executor performs the classified actions against the messaging gateway.
// Each batch fans out concurrently with a bounded pool; items are isolated
// from each other's failures.
type Executor struct {
	gateway       telegram.Gateway
	logger        *zap.Logger
	maxConcurrent int
}

// NewExecutor creates an Executor with the given fan-out bound.
func NewExecutor(gateway telegram.Gateway, maxConcurrent int, logger *zap.Logger) *Executor {
	return &Executor{
		gateway:       gateway,
		logger:        logger.Named("executor"),
		maxConcurrent: maxConcurrent,
	}
}

// Execute runs the three action batches and collects per-item outcomes.
func (e *Executor) Execute(ctx context.Context, c *Classification) *ExecutionResult {
	result := &ExecutionResult{}

	e.denyAndRemove(ctx, c, result)
	e.notify(ctx, c, result)
	e.ban(ctx, c, result)

	return result
}

// denyAndRemove declines pending join requests. Gateway failures are
// masked; the member is resolved either way.
func (e *Executor) denyAndRemove(ctx context.Context, c *Classification, result *ExecutionResult) {
	if len(c.ToDenyAndRemove) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(e.maxConcurrent)

	for _, member := range c.ToDenyAndRemove {
		p.Go(func() {
			if err := e.gateway.DeclineJoinRequest(ctx, member.ChatID, member.UserID); err != nil {
				e.logger.Debug("Decline failed, treating as withdrawn",
					zap.Int64("userID", member.UserID),
					zap.Int64("chatID", member.ChatID),
					zap.Error(err))
			}
		})
	}

	p.Wait()

	result.Removed = append(result.Removed, c.ToDenyAndRemove...)
}

// notify sends reminders and tracks which ones were actually delivered.
func (e *Executor) notify(ctx context.Context, c *Classification, result *ExecutionResult) {
	if len(c.ToNotify) == 0 {
		return
	}

	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(e.maxConcurrent)

	for _, member := range c.ToNotify {
		p.Go(func() {
			text := reminderText(member, c.Usernames[member])

			if err := e.gateway.SendMessage(ctx, member.UserID, text); err != nil {
				e.logger.Warn("Reminder delivery failed",
					zap.Int64("userID", member.UserID),
					zap.Int64("chatID", member.ChatID),
					zap.Error(err))
				return
			}

			mu.Lock()
			result.Notified = append(result.Notified, member)
			mu.Unlock()
		})
	}

	p.Wait()
}

// ban runs the strictly ordered approve-ban sequence for each candidate.
// A failure after approval is a policy hazard and is reported, not dropped.
func (e *Executor) ban(ctx context.Context, c *Classification, result *ExecutionResult) {
	if len(c.ToBan) == 0 {
		return
	}

	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(e.maxConcurrent)

	for _, member := range c.ToBan {
		p.Go(func() {
			if err := e.gateway.ApproveJoinRequest(ctx, member.ChatID, member.UserID); err != nil {
				mu.Lock()
				result.BanFailures = append(result.BanFailures, BanFailure{Member: member, Err: err})
				mu.Unlock()
				return
			}

			if err := e.gateway.BanMember(ctx, member.ChatID, member.UserID); err != nil {
				mu.Lock()
				result.BanFailures = append(result.BanFailures, BanFailure{Member: member, Approved: true, Err: err})
				mu.Unlock()
				return
			}

			mu.Lock()
			result.Banned = append(result.Banned, member)
			mu.Unlock()
		})
	}

	p.Wait()
}

// reminderText builds the user-facing reminder message.
func reminderText(member types.Member, username string) string {
	if username == "" {
		username = fmt.Sprintf("user %d", member.UserID)
	}

	return fmt.Sprintf(
		"%s, your request to join is still waiting on verification. "+
			"Please complete the process soon, or the request will be removed.",
		telegram.Mention(member.UserID, username),
	)
}
