package types

import (
	"fmt"
	"strings"
	"time"
)

// NamedMember pairs a member with their display name and the time their
// join request was recorded, for status reports.
type NamedMember struct {
	UserID   int64
	Username string
	At       time.Time
}

// ChatStatus is the derived view of one chat's pending moderation state:
// who is still waiting unnudged, who has been reminded, and who carries a
// ban marker. WorkSummary holds the latest reconciliation audit text.
type ChatStatus struct {
	ChatID      int64
	Pending     []NamedMember
	Notified    []NamedMember
	Prebanned   []NamedMember
	WorkSummary string
}

// Empty reports whether the chat has no pending moderation state at all.
func (s *ChatStatus) Empty() bool {
	return len(s.Pending) == 0 && len(s.Notified) == 0 && len(s.Prebanned) == 0
}

// Render formats the status for an admin-facing message.
func (s *ChatStatus) Render() string {
	if s.Empty() {
		return fmt.Sprintf("chat_id: %d\nNo pending, banned or notified users for this chat!", s.ChatID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "chat_id: %d\n", s.ChatID)
	writeGroup(&b, "pending", s.Pending)
	writeGroup(&b, "notified", s.Notified)
	writeGroup(&b, "prebanned", s.Prebanned)

	if s.WorkSummary != "" {
		fmt.Fprintf(&b, "work_summary: %s\n", s.WorkSummary)
	}

	return b.String()
}

func writeGroup(b *strings.Builder, label string, members []NamedMember) {
	if len(members) == 0 {
		return
	}

	entries := make([]string, 0, len(members))
	for _, m := range members {
		entries = append(entries, fmt.Sprintf("%s (%d) since %s", m.Username, m.UserID, m.At.Format(time.RFC3339)))
	}

	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(entries, ", "))
}
