package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joinwarden/joinwarden/internal/database/dbretry"
	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SettingModel handles database operations for per-chat settings.
type SettingModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSetting creates a SettingModel with database access.
func NewSetting(db *bun.DB, logger *zap.Logger) *SettingModel {
	return &SettingModel{
		db:     db,
		logger: logger.Named("db_setting"),
	}
}

// GetChatSettings retrieves settings for a specific chat, creating defaults
// if none exist yet.
func (r *SettingModel) GetChatSettings(ctx context.Context, chatID int64) (*types.ChatSetting, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ChatSetting, error) {
		settings := &types.ChatSetting{
			ChatID: chatID,
			Mode:   types.ChatModeAuto,
		}

		err := r.db.NewSelect().Model(settings).
			WherePK().
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				_, err = r.db.NewInsert().Model(settings).Exec(ctx)
				if err != nil {
					return nil, fmt.Errorf("failed to create chat settings: %w (chatID=%d)", err, chatID)
				}
				return settings, nil
			}
			return nil, fmt.Errorf("failed to get chat settings: %w (chatID=%d)", err, chatID)
		}

		return settings, nil
	})
}

// UpsertSettings saves the given settings, inserting or replacing the
// chat's row.
func (r *SettingModel) UpsertSettings(ctx context.Context, settings *types.ChatSetting) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(settings).
			On("CONFLICT (chat_id) DO UPDATE").
			Set("chat_url = EXCLUDED.chat_url").
			Set("helper_chat_id = EXCLUDED.helper_chat_id").
			Set("verification_msg = EXCLUDED.verification_msg").
			Set("mode = EXCLUDED.mode").
			Set("changelog = EXCLUDED.changelog").
			Set("paused = EXCLUDED.paused").
			Set("show_join_time = EXCLUDED.show_join_time").
			Set("ban_not_joining = EXCLUDED.ban_not_joining").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert chat settings: %w (chatID=%d)", err, settings.ChatID)
		}
		return nil
	})
}

// DeleteSettings removes a chat's settings row entirely.
func (r *SettingModel) DeleteSettings(ctx context.Context, chatID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewDelete().
			Model((*types.ChatSetting)(nil)).
			Where("chat_id = ?", chatID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete chat settings: %w (chatID=%d)", err, chatID)
		}
		return nil
	})
}

// GetChatsWithBanPolicy returns the set of chats that ban members who fail
// to complete the join flow in time. This is the single policy fact the
// reconciliation engine consumes.
func (r *SettingModel) GetChatsWithBanPolicy(ctx context.Context) (map[int64]struct{}, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]struct{}, error) {
		var chatIDs []int64

		err := r.db.NewSelect().
			Model((*types.ChatSetting)(nil)).
			Column("chat_id").
			Where("ban_not_joining = ?", true).
			Scan(ctx, &chatIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get chats with ban policy: %w", err)
		}

		chats := make(map[int64]struct{}, len(chatIDs))
		for _, id := range chatIDs {
			chats[id] = struct{}{}
		}

		return chats, nil
	})
}
