package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/infra"
	"github.com/xela07ax/compliance-audit-engine/internal/ingest"
	"github.com/xela07ax/compliance-audit-engine/internal/storage"
	"github.com/xela07ax/compliance-audit-engine/internal/templates"
	"go.uber.org/zap"
)

// BuildTemplateRequest — либо строки от сервиса извлечения (Rows), либо вопросы ручной формы (Questions).
type BuildTemplateRequest struct {
	Name      string                      `json:"name"`
	Rows      []ingest.Row                `json:"rows,omitempty"`
	Questions []domain.QuestionDefinition `json:"questions,omitempty"`
}

type TemplateService struct {
	store   *templates.Store
	repo    storage.Adapter
	builder *ingest.Builder
	signals Signaler
	logger  *zap.Logger

	mu sync.Mutex // Коллекция перезаписывается целиком: публикации идут по одной
}

func NewTemplateService(store *templates.Store, repo storage.Adapter, builder *ingest.Builder, signals Signaler, logger *zap.Logger) *TemplateService {
	return &TemplateService{
		store:   store,
		repo:    repo,
		builder: builder,
		signals: signals,
		logger:  logger.Named("template-service"),
	}
}

func (s *TemplateService) ListTemplates(_ context.Context) []domain.AuditTemplate {
	return s.store.List()
}

func (s *TemplateService) GetTemplate(_ context.Context, id string) (*domain.AuditTemplate, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrTemplateNotFound)
	}
	return t, nil
}

// BuildTemplate проверяет кандидата и публикует шаблон. При нарушениях возвращает domain.ValidationErrors,
// ничего не сохраняя.
func (s *TemplateService) BuildTemplate(ctx context.Context, req BuildTemplateRequest) (*domain.AuditTemplate, error) {
	tpl, violations := s.build(req, nil)
	if len(violations) > 0 {
		return nil, violations
	}
	if err := s.publish(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// ReviseTemplate публикует новую версию. Исходный шаблон и аудиты по нему не меняются.
func (s *TemplateService) ReviseTemplate(ctx context.Context, id string, req BuildTemplateRequest) (*domain.AuditTemplate, error) {
	prev, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		req.Name = prev.Name
	}

	tpl, violations := s.build(req, prev)
	if len(violations) > 0 {
		return nil, violations
	}
	if err := s.publish(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Seed публикует кандидатов, только если каталог пуст (первый старт).
func (s *TemplateService) Seed(ctx context.Context, candidates []ingest.Candidate) (int, error) {
	if s.store.Len() > 0 {
		return 0, nil
	}
	n := 0
	for _, c := range candidates {
		tpl, violations := s.builder.BuildFromRows(c)
		if len(violations) > 0 {
			s.logger.Error("seed template rejected", zap.String("name", c.Name), zap.Error(violations))
			continue
		}
		if err := s.publish(ctx, tpl); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *TemplateService) build(req BuildTemplateRequest, prev *domain.AuditTemplate) (*domain.AuditTemplate, domain.ValidationErrors) {
	c := ingest.Candidate{Name: req.Name, Questions: req.Rows}
	if len(req.Rows) == 0 {
		c = ingest.CandidateFromQuestions(req.Name, req.Questions)
	}
	if prev != nil {
		return s.builder.Revise(prev, c)
	}
	return s.builder.BuildFromRows(c)
}

// publish: 1. сохраняем коллекцию с новым шаблоном, 2. добавляем в каталог, 3. сигнал остальным репликам.
func (s *TemplateService) publish(ctx context.Context, tpl *domain.AuditTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.store.Snapshot(), *tpl)
	if err := s.repo.SaveTemplates(ctx, list); err != nil {
		s.logger.Error("failed to persist template", zap.String("template_id", tpl.ID), zap.Error(err))
		return fmt.Errorf("service: save templates: %w", err)
	}
	if err := s.store.Add(tpl); err != nil {
		return err
	}

	notify(ctx, s.signals, s.logger, infra.RedisChanTemplatePublished, tpl.ID)
	s.logger.Info("template published",
		zap.String("template_id", tpl.ID),
		zap.String("name", tpl.Name),
		zap.Int("version", tpl.Version),
		zap.Int("questions", len(tpl.Questions)))
	return nil
}
