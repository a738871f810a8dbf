package types

import "github.com/uptrace/bun"

// ChatMode selects how join requests are confirmed for a chat.
type ChatMode string

const (
	ChatModeAuto          ChatMode = "auto"
	ChatModeManual        ChatMode = "manual"
	ChatModeQuestionnaire ChatMode = "questionnaire"
)

// ChatSetting holds per-chat configuration. The reconciliation engine only
// consumes BanNotJoining; the remaining fields belong to the upstream
// request handlers that share this table.
type ChatSetting struct {
	bun.BaseModel `bun:"table:chat_settings"`

	ChatID          int64    `bun:"chat_id,pk"`
	ChatURL         string   `bun:"chat_url,nullzero"`
	HelperChatID    int64    `bun:"helper_chat_id,nullzero"`
	VerificationMsg string   `bun:"verification_msg,nullzero"`
	Mode            ChatMode `bun:"mode,nullzero"`
	Changelog       bool     `bun:"changelog"`
	Paused          bool     `bun:"paused"`
	ShowJoinTime    bool     `bun:"show_join_time"`
	// BanNotJoining controls whether overdue unverified members are banned
	// instead of merely declined.
	BanNotJoining bool `bun:"ban_not_joining"`
}
