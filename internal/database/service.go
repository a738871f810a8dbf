package database

import (
	"github.com/joinwarden/joinwarden/internal/database/service"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	status *service.StatusService
}

// NewService creates a new service instance with all services.
func NewService(repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		status: service.NewStatus(repository.Event(), logger),
	}
}

// Status returns the chat status service.
func (s *Service) Status() *service.StatusService {
	return s.status
}
