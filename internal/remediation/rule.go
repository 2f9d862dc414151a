package remediation

import (
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

const (
	// DefaultCriticalWeight — порог веса критичного вопроса (из типичного диапазона 1..5).
	DefaultCriticalWeight = 4
	// DefaultDeadline — срок корректирующего наряда от момента генерации (2 календарных дня).
	DefaultDeadline = 48 * time.Hour
)

// Rule выделяет критические провалы в завершённом аудите и формирует заявки на устранение.
type Rule struct {
	CriticalWeight int
	Deadline       time.Duration
	Now            func() time.Time
	NewID          func() string
}

// NewRule создает правило с заданным порогом. Нулевые значения заменяются дефолтами.
func NewRule(criticalWeight int, deadline time.Duration) *Rule {
	if criticalWeight <= 0 {
		criticalWeight = DefaultCriticalWeight
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Rule{
		CriticalWeight: criticalWeight,
		Deadline:       deadline,
		Now:            time.Now,
		NewID:          func() string { return uuid.New().String() },
	}
}

// IsCritical — предикат отбора: не NA, нулевой балл и вес не ниже порога.
func (r *Rule) IsCritical(q domain.QuestionState) bool {
	return !q.NA && q.Score == 0 && q.Weight >= r.CriticalWeight
}

// Derive проходит по снимку вопросов и выпускает по одной заявке на каждый критический провал.
// Пустой результат — нормальный исход (устранение не требуется).
func (r *Rule) Derive(s *domain.AuditSimulation) []domain.RemediationRequest {
	out := make([]domain.RemediationRequest, 0)
	if s == nil {
		return out
	}

	now := r.Now()
	for _, q := range s.Questions {
		if !r.IsCritical(q) {
			continue
		}
		out = append(out, domain.RemediationRequest{
			ID:           r.NewID(),
			Origin:       domain.OriginAudit,
			AuditID:      s.ID,
			TemplateID:   s.TemplateID,
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Category:     q.Category,
			UnitID:       s.UnitID,
			Weight:       q.Weight,
			Deadline:     dueDate(now, r.Deadline),
			CreatedAt:    now,
		})
	}
	return out
}

// dueDate считает целые сутки срока календарными днями в зоне now, остаток прибавляет как длительность.
// Переход на летнее время не сдвигает час сдачи.
func dueDate(now time.Time, d time.Duration) time.Time {
	const day = 24 * time.Hour
	return now.AddDate(0, 0, int(d/day)).Add(d % day)
}
