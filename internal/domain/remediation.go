package domain

import "time"

// OriginAudit помечает заявки, созданные автоматически по результатам аудита,
// чтобы модуль обслуживания отличал их от открытых вручную.
const OriginAudit = "AUDIT"

// RemediationRequest — запрос на создание корректирующего наряда во внешнем модуле обслуживания.
// Ядро его не хранит и не отслеживает исполнение.
type RemediationRequest struct {
	ID           string    `json:"id"`
	Origin       string    `json:"origin"`
	AuditID      string    `json:"audit_id"`
	TemplateID   string    `json:"template_id"`
	QuestionID   string    `json:"question_id"`
	QuestionText string    `json:"question_text"`
	Category     string    `json:"category"`
	UnitID       string    `json:"unit_id"`
	Weight       int       `json:"weight"`
	Deadline     time.Time `json:"deadline"`
	CreatedAt    time.Time `json:"created_at"`
}
