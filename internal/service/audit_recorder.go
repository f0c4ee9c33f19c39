package service

import (
	"context"
	"encoding/json"
	"time"

	"quarters-data/internal/domain"
	"quarters-data/internal/repository"

	"go.uber.org/zap"
)

// AuditRecorder 审计记录器：writes the mutation ledger after the owning
// transaction has committed. Recording is best-effort; a failed insert is
// logged and swallowed so it never rolls back or fails the operation it
// describes.
type AuditRecorder struct {
	auditRepo repository.AuditRepository
	logger    *zap.Logger
}

func NewAuditRecorder(auditRepo repository.AuditRepository, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{auditRepo: auditRepo, logger: logger}
}

// Record appends one audit row. oldData/newData may be nil.
func (a *AuditRecorder) Record(ctx context.Context, actor domain.Actor, action, entityType, entityID string, oldData, newData any) {
	entry := &domain.AuditEntry{
		UserID:     actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldData:    marshalAudit(oldData),
		NewData:    marshalAudit(newData),
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  time.Now(),
	}

	if _, err := a.auditRepo.InsertAudit(ctx, entry); err != nil {
		a.logger.Warn("Failed to record audit entry",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func marshalAudit(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
