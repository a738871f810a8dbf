package migrations

import (
	"context"
	"fmt"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Event)(nil),
			(*types.ChatSetting)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		// Indexes for the reconciliation scan and member lookups
		indexes := []struct {
			name    string
			table   string
			columns string
		}{
			{"idx_events_operation_at", "events", "operation, at"},
			{"idx_events_member", "events", "user_id, chat_id"},
			{"idx_events_chat", "events", "chat_id"},
			{"idx_chat_settings_ban_policy", "chat_settings", "ban_not_joining"},
		}

		for _, idx := range indexes {
			_, err := db.NewRaw(fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				idx.name, idx.table, idx.columns)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for _, table := range []string{"events", "chat_settings"} {
			_, err := db.NewDropTable().
				TableExpr(table).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}
		return nil
	})
}
