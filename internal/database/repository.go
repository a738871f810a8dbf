package database

import (
	"github.com/joinwarden/joinwarden/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	event   *models.EventModel
	setting *models.SettingModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		event:   models.NewEvent(db, logger),
		setting: models.NewSetting(db, logger),
	}
}

// Event returns the event log model repository.
func (r *Repository) Event() *models.EventModel {
	return r.event
}

// Setting returns the chat settings model repository.
func (r *Repository) Setting() *models.SettingModel {
	return r.setting
}
