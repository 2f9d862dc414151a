package archive

import (
	"time"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// Record — неизменяемая запись подписанного аудита для читателей истории и трендов.
type Record struct {
	AuditID         string                 `json:"audit_id"`
	TemplateID      string                 `json:"template_id"`
	UnitID          string                 `json:"unit_id"`
	AuditorID       string                 `json:"auditor_id"`
	FinalScore      int                    `json:"final_score"`
	Remediations    int                    `json:"remediations"` // Сколько заявок выпущено при завершении
	SignatureSHA256 string                 `json:"signature_sha256"`
	CompletedAt     time.Time              `json:"completed_at"`
	Session         domain.AuditSimulation `json:"session"` // Полный снимок на момент подписи
}

// FromSession строит запись из завершённого аудита. Для DRAFT вернёт false.
func FromSession(s *domain.AuditSimulation, remediations int) (Record, bool) {
	if s == nil || !s.IsCompleted() || s.Signature == nil || s.CompletedAt == nil {
		return Record{}, false
	}
	return Record{
		AuditID:         s.ID,
		TemplateID:      s.TemplateID,
		UnitID:          s.UnitID,
		AuditorID:       s.AuditorID,
		FinalScore:      s.FinalScore,
		Remediations:    remediations,
		SignatureSHA256: s.Signature.SHA256,
		CompletedAt:     *s.CompletedAt,
		Session:         s.Clone(),
	}, true
}
