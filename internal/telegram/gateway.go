package telegram

import (
	"context"
	"fmt"
)

// Gateway performs the user-facing side effects of moderation: reminders,
// join request resolution, bans, and admin alerts. The reconciliation
// engine depends on this interface so tests can substitute a fake.
type Gateway interface {
	// SendMessage delivers a direct message to a user.
	SendMessage(ctx context.Context, chatID int64, text string) error
	// ApproveJoinRequest accepts a pending join request.
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
	// DeclineJoinRequest rejects a pending join request.
	DeclineJoinRequest(ctx context.Context, chatID, userID int64) error
	// BanMember bans a user from a chat.
	BanMember(ctx context.Context, chatID, userID int64) error
	// SendAdminAlert forwards operational failures to the admin channel.
	SendAdminAlert(ctx context.Context, text string) error
}

// Mention renders a clickable markdown mention for a user.
func Mention(userID int64, username string) string {
	return fmt.Sprintf("[%s](tg://user?id=%d)", username, userID)
}
