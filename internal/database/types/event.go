package types

import (
	"fmt"
	"time"

	"github.com/joinwarden/joinwarden/internal/database/types/enum"
	"github.com/uptrace/bun"
)

// Member is the composite identity of a user's relationship to one chat.
type Member struct {
	UserID int64 `json:"userId"`
	ChatID int64 `json:"chatId"`
}

// String formats the member for reports and admin alerts.
func (m Member) String() string {
	return fmt.Sprintf("user_id: %d, chat_id: %d", m.UserID, m.ChatID)
}

// Event is one append-only log entry describing a user action or an
// engine-internal audit note.
//
// (user_id, chat_id, operation) is deliberately not unique: a member can
// accumulate multiple records over time (a join request, later a ban marker)
// and their current state is derived by scanning all matching records.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        int64          `bun:"id,pk,autoincrement"`
	Operation enum.Operation `bun:"operation,notnull"`
	UserID    int64          `bun:"user_id"`
	ChatID    int64          `bun:"chat_id"`
	Username  string         `bun:"username"`
	At        time.Time      `bun:"at,notnull"`
	// Notified is set once a reminder was successfully delivered.
	// Absence (NULL) means the member has not been nudged yet.
	Notified *bool `bun:"notified"`
	// Message carries free text for audit-type entries only.
	Message string `bun:"message,nullzero"`
}

// Member returns the event's member identity.
func (e *Event) Member() Member {
	return Member{UserID: e.UserID, ChatID: e.ChatID}
}

// NewJoinRequest builds a wants_to_join record. The engine never inserts
// these itself; upstream handlers do.
func NewJoinRequest(member Member, username string, at time.Time) *Event {
	return &Event{
		Operation: enum.OperationWantsToJoin,
		UserID:    member.UserID,
		ChatID:    member.ChatID,
		Username:  username,
		At:        at,
	}
}

// NewBanMarker builds the durable is_banned record persisted after a
// successful ban sequence.
func NewBanMarker(member Member, username string, at time.Time) *Event {
	return &Event{
		Operation: enum.OperationIsBanned,
		UserID:    member.UserID,
		ChatID:    member.ChatID,
		Username:  username,
		At:        at,
	}
}

// NewAuditEntry builds a background_task record summarizing one
// reconciliation run. Audit entries are exempt from pruning.
func NewAuditEntry(message string, at time.Time) *Event {
	return &Event{
		Operation: enum.OperationBackgroundTask,
		At:        at,
		Message:   message,
	}
}
