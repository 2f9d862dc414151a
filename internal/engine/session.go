package engine

/*
Файл session.go реализует жизненный цикл аудита (Audit Session):
- Snapshot-on-instantiation: вопросы шаблона глубоко копируются в аудит при старте,
  поэтому новые версии шаблона не меняют ни завершённые, ни текущие аудиты.
- Синхронный пересчёт: FinalScore пересчитывается до возврата из каждой мутации,
  вызывающий код никогда не видит устаревший балл.
Движок не делает I/O: загрузка шаблонов и сохранение аудитов — забота сервиса вокруг него.
*/

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/remediation"
	"github.com/xela07ax/compliance-audit-engine/internal/scoring"
	"go.uber.org/zap"
)

// TemplateLookup — доступ к опубликованным шаблонам только на чтение.
type TemplateLookup interface {
	Get(id string) (*domain.AuditTemplate, bool)
}

type Engine struct {
	templates TemplateLookup
	calc      scoring.Calculator
	rule      *remediation.Rule
	metrics   *Metrics
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewEngine(templates TemplateLookup, calc scoring.Calculator, rule *remediation.Rule, metrics *Metrics, logger *zap.Logger) *Engine {
	if rule == nil {
		rule = remediation.NewRule(remediation.DefaultCriticalWeight, remediation.DefaultDeadline)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		templates: templates,
		calc:      calc,
		rule:      rule,
		metrics:   metrics,
		logger:    logger.Named("engine"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// StartParams — явный контекст аудита (без глобального «текущего подразделения»).
type StartParams struct {
	Title     string
	UnitID    string
	AuditorID string
	Date      time.Time
}

// Start создает аудит в DRAFT из шаблона. Каждый вопрос стартует с максимальным баллом
// (аудит «полностью соответствует», аудитор понижает отдельные пункты).
func (e *Engine) Start(tpl *domain.AuditTemplate, p StartParams) (*domain.AuditSimulation, error) {
	if tpl == nil {
		return nil, domain.ErrTemplateNotFound
	}

	now := e.now()
	snapshot := tpl.Clone()
	questions := make([]domain.QuestionState, len(snapshot.Questions))
	for i, q := range snapshot.Questions {
		questions[i] = domain.QuestionState{
			QuestionDefinition: q,
			Score:              q.MaxValue(),
			NA:                 false,
		}
	}

	date := p.Date
	if date.IsZero() {
		date = now
	}
	title := p.Title
	if title == "" {
		title = fmt.Sprintf("%s — %s", tpl.Name, date.Format("2006-01-02"))
	}

	s := &domain.AuditSimulation{
		ID:         e.newID(),
		Title:      title,
		TemplateID: tpl.ID,
		UnitID:     p.UnitID,
		AuditorID:  p.AuditorID,
		Date:       date,
		Status:     domain.StatusDraft,
		Questions:  questions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e.recompute(s)

	e.metrics.AuditsStarted.WithLabelValues(tpl.ID).Inc()
	e.logger.Debug("audit started",
		zap.String("audit_id", s.ID),
		zap.String("template_id", tpl.ID),
		zap.String("unit_id", s.UnitID),
		zap.Int("score", s.FinalScore))
	return s, nil
}

// SetAnswer меняет ответ ровно одного вопроса и пересчитывает FinalScore.
// Неизвестный questionID — no-op (applied=false), это ошибка вызывающего, а не сессии.
// При любом отказе сессия остаётся в исходном состоянии.
func (e *Engine) SetAnswer(s *domain.AuditSimulation, questionID string, patch domain.AnswerPatch) (applied bool, err error) {
	if s.IsCompleted() {
		return false, &domain.SessionFinalizedError{SessionID: s.ID}
	}

	idx := s.QuestionIndex(questionID)
	if idx < 0 {
		e.logger.Debug("answer for unknown question ignored",
			zap.String("audit_id", s.ID), zap.String("question_id", questionID))
		return false, nil
	}

	q := &s.Questions[idx]
	if patch.Score != nil && !q.HasOptionValue(*patch.Score) {
		return false, fmt.Errorf("question %s: %w (got %v)", questionID, domain.ErrInvalidScore, *patch.Score)
	}

	if patch.Score != nil {
		q.Score = *patch.Score
	}
	if patch.NA != nil {
		q.NA = *patch.NA
	}
	s.UpdatedAt = e.now()
	e.recompute(s)

	e.metrics.AnswersSet.Inc()
	return true, nil
}

// Breakdown — баллы по категориям для детального просмотра аудита.
func (e *Engine) Breakdown(s *domain.AuditSimulation) []scoring.CategoryResult {
	tpl, _ := e.templates.Get(s.TemplateID)
	return e.calc.ByCategory(s.Questions, tpl)
}

// recompute держит инвариант: FinalScore всегда согласован со снимком вопросов и таблицей максимумов шаблона.
func (e *Engine) recompute(s *domain.AuditSimulation) {
	tpl, ok := e.templates.Get(s.TemplateID)
	if !ok {
		// Висячая ссылка на шаблон не должна делать аудит неоцениваемым
		e.logger.Warn("template referenced by audit not found, using default maximum",
			zap.String("audit_id", s.ID),
			zap.String("template_id", s.TemplateID))
		tpl = nil
	}

	res := e.calc.Compute(s.Questions, tpl)
	if len(res.Fallbacks) > 0 {
		e.metrics.ScoringFallbacks.Add(float64(len(res.Fallbacks)))
		if ok {
			e.logger.Warn("questions missing from template, scored with default maximum",
				zap.String("audit_id", s.ID),
				zap.String("template_id", s.TemplateID),
				zap.Strings("question_ids", res.Fallbacks))
		}
	}
	s.FinalScore = res.Score
}
