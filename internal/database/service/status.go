package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/joinwarden/joinwarden/internal/database/models"
	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/database/types/enum"
	"go.uber.org/zap"
)

// EventLog is the slice of the event model the status view reads.
type EventLog interface {
	GetChatEvents(ctx context.Context, chatID int64) ([]*types.Event, error)
	GetLatestAudit(ctx context.Context) (*types.Event, error)
}

// StatusService derives the current moderation state of a chat from its
// event log. Nothing is stored for the view itself; it is reconstructed
// from the append-only records on every call.
type StatusService struct {
	event  EventLog
	logger *zap.Logger
}

// NewStatus creates a StatusService.
func NewStatus(event EventLog, logger *zap.Logger) *StatusService {
	return &StatusService{
		event:  event,
		logger: logger.Named("status_service"),
	}
}

// GetChatStatus groups a chat's members into pending (join request without
// a reminder), notified (reminder delivered), and prebanned (durable ban
// marker present), and attaches the latest reconciliation summary.
func (s *StatusService) GetChatStatus(ctx context.Context, chatID int64) (*types.ChatStatus, error) {
	events, err := s.event.GetChatEvents(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat events: %w", err)
	}

	status := &types.ChatStatus{ChatID: chatID}

	for _, event := range events {
		named := types.NamedMember{
			UserID:   event.UserID,
			Username: event.Username,
			At:       event.At,
		}

		switch event.Operation {
		case enum.OperationWantsToJoin:
			if event.Notified != nil {
				status.Notified = append(status.Notified, named)
			} else {
				status.Pending = append(status.Pending, named)
			}
		case enum.OperationIsBanned:
			status.Prebanned = append(status.Prebanned, named)
		}
	}

	audit, err := s.event.GetLatestAudit(ctx)
	switch {
	case err == nil:
		status.WorkSummary = audit.Message
	case errors.Is(err, models.ErrNoAuditEntries):
		// No run has completed yet; leave the summary empty.
	default:
		s.logger.Warn("Failed to load latest audit entry",
			zap.Int64("chatID", chatID),
			zap.Error(err))
	}

	return status, nil
}
