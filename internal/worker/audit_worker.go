package worker

import (
	"github.com/spec-kit/account-service/internal/service"
)

// StartAuditWorker subscribes the audit service to lifecycle events.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
