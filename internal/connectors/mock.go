package connectors

import (
	"context"
	"sync"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

// MockSink — транспорт для dev-окружения и тестов: запоминает заявки и пишет их в лог.
// Fail позволяет имитировать отказ модуля обслуживания.
type MockSink struct {
	mu        sync.Mutex
	submitted []domain.RemediationRequest
	logger    *zap.Logger

	Fail func(req domain.RemediationRequest) error
}

func NewMockSink(logger *zap.Logger) *MockSink {
	return &MockSink{logger: logger.Named("mock-maintenance")}
}

func (m *MockSink) Submit(ctx context.Context, req domain.RemediationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Fail != nil {
		if err := m.Fail(req); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.submitted = append(m.submitted, req)
	m.mu.Unlock()

	m.logger.Info("work order requested",
		zap.String("remediation_id", req.ID),
		zap.String("audit_id", req.AuditID),
		zap.String("question_id", req.QuestionID),
		zap.Time("deadline", req.Deadline))
	return nil
}

// Submitted — копия принятых заявок.
func (m *MockSink) Submitted() []domain.RemediationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RemediationRequest(nil), m.submitted...)
}
