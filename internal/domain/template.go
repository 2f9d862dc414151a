package domain

import (
	"errors"
	"time"
)

var (
	ErrTemplateNotFound = errors.New("audit template not found")
	ErrTemplateExists   = errors.New("audit template already exists")
)

// Option — вариант ответа на вопрос чек-листа.
// Value — балл, начисляемый при выборе варианта (вариант с максимальным Value считается «полностью соответствует»).
type Option struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

// QuestionDefinition — вопрос из банка вопросов шаблона.
type QuestionDefinition struct {
	ID       string   `json:"id" yaml:"id"`
	Category string   `json:"category" yaml:"category"` // Свободная группировка (например, "Segurança", "EPI")
	Text     string   `json:"text" yaml:"text"`
	Weight   int      `json:"weight" yaml:"weight"` // Обычно 1..5
	Options  []Option `json:"options" yaml:"options"`
}

// MaxValue возвращает максимальный балл среди вариантов ответа.
func (q QuestionDefinition) MaxValue() float64 {
	var max float64
	for i, o := range q.Options {
		if i == 0 || o.Value > max {
			max = o.Value
		}
	}
	return max
}

// HasOptionValue проверяет, что балл соответствует одному из вариантов ответа.
func (q QuestionDefinition) HasOptionValue(v float64) bool {
	for _, o := range q.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// AuditTemplate — именованный версионированный банк вопросов.
// После публикации шаблон не изменяется: правка порождает новый шаблон (Version+1, PreviousID),
// чтобы баллы завершённых аудитов оставались воспроизводимыми.
type AuditTemplate struct {
	ID         string               `json:"id" yaml:"id"`
	Name       string               `json:"name" yaml:"name"`
	Version    int                  `json:"version" yaml:"version"`
	PreviousID string               `json:"previous_id,omitempty" yaml:"previous_id,omitempty"`
	Questions  []QuestionDefinition `json:"questions" yaml:"questions"`
	CreatedAt  time.Time            `json:"created_at" yaml:"created_at"`
}

// Question ищет определение вопроса по ID.
func (t *AuditTemplate) Question(id string) (QuestionDefinition, bool) {
	if t == nil {
		return QuestionDefinition{}, false
	}
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return QuestionDefinition{}, false
}

// Clone делает глубокую копию шаблона (вопросы и варианты ответов).
func (t AuditTemplate) Clone() AuditTemplate {
	out := t
	out.Questions = make([]QuestionDefinition, len(t.Questions))
	for i, q := range t.Questions {
		q.Options = append([]Option(nil), q.Options...)
		out.Questions[i] = q
	}
	return out
}
