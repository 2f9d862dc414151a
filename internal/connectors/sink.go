// Package connectors — клиенты модуля обслуживания (maintenance work-order module).
// Модуль сам превращает RemediationRequest в свои наряды; здесь только доставка.
package connectors

import (
	"context"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// WorkOrderSink принимает заявку на корректирующий наряд.
type WorkOrderSink interface {
	Submit(ctx context.Context, req domain.RemediationRequest) error
}

const sourceName = "compliance-audit"
