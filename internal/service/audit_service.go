package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
)

// AuditService records user lifecycle events in the log and metrics.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handleUserRegistered)
	a.dispatcher.Subscribe(events.EventUserDeleted, a.handleUserDeleted)
}

func (a *AuditService) handleUserRegistered(_ context.Context, event events.Event) error {
	a.logger.Info("UserRegistered",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.Time("at", event.Timestamp))
	a.metrics.RecordLifecycleEvent(string(event.Type))
	return nil
}

func (a *AuditService) handleUserDeleted(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.Time("at", event.Timestamp),
	}
	if payload, ok := event.Payload.(events.UserDeletedPayload); ok {
		fields = append(fields, zap.Bool("already_deleted", payload.AlreadyDeleted))
	}
	a.logger.Info("UserDeleted", fields...)
	a.metrics.RecordLifecycleEvent(string(event.Type))
	return nil
}
