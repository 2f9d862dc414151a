package domain

import (
	"errors"
	"time"
)

// Статусы State Machine аудита
type AuditStatus string

const (
	StatusDraft     AuditStatus = "DRAFT"
	StatusCompleted AuditStatus = "COMPLETED"
)

var (
	ErrSessionNotFound   = errors.New("audit session not found")
	ErrInvalidTransition = errors.New("invalid audit status transition")
	ErrInvalidScore      = errors.New("score does not match any option of the question")
	ErrSessionLocked     = errors.New("audit session is being edited by another auditor")
)

// QuestionState — снимок вопроса шаблона внутри аудита плюс изменяемое состояние ответа.
type QuestionState struct {
	QuestionDefinition
	Score float64 `json:"score"` // Балл выбранного варианта
	NA    bool    `json:"na"`    // "Не применимо" — вопрос исключается из расчёта
}

// Signature — захваченная подпись аудитора.
// Data хранится как есть, SHA256 фиксируется для контроля целостности архива.
type Signature struct {
	Data     string    `json:"data"`
	SignedBy string    `json:"signed_by"`
	SignedAt time.Time `json:"signed_at"`
	SHA256   string    `json:"sha256"`
}

// AuditSimulation — одно исполнение шаблона (экземпляр аудита).
type AuditSimulation struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	TemplateID string          `json:"template_id"` // Ссылка, шаблон общий и только для чтения
	UnitID     string          `json:"unit_id"`
	AuditorID  string          `json:"auditor_id"`
	Date       time.Time       `json:"date"`
	Status     AuditStatus     `json:"status"`
	Questions  []QuestionState `json:"questions"`
	FinalScore int             `json:"final_score"`
	Signature  *Signature      `json:"signature,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата: единственный переход DRAFT -> COMPLETED.
func (s *AuditSimulation) CanTransitionTo(next AuditStatus) error {
	if s.Status == StatusCompleted {
		return &SessionFinalizedError{SessionID: s.ID}
	}
	if s.Status != StatusDraft || next != StatusCompleted {
		return ErrInvalidTransition
	}
	return nil
}

// IsCompleted — аудит подписан и заморожен.
func (s *AuditSimulation) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// QuestionIndex возвращает позицию вопроса в снимке или -1.
func (s *AuditSimulation) QuestionIndex(questionID string) int {
	for i := range s.Questions {
		if s.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// Clone делает глубокую копию аудита: вызывающий код может менять её, не затрагивая оригинал.
func (s AuditSimulation) Clone() AuditSimulation {
	out := s
	out.Questions = make([]QuestionState, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]Option(nil), q.Options...)
		out.Questions[i] = q
	}
	if s.Signature != nil {
		sig := *s.Signature
		out.Signature = &sig
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

// AnswerPatch — изменение ответа: балл и/или флаг "не применимо".
type AnswerPatch struct {
	Score *float64 `json:"score,omitempty"`
	NA    *bool    `json:"na,omitempty"`
}
