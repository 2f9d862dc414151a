package templates

import (
	"context"
	"sort"
	"sync"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

type Loader interface {
	LoadTemplates(ctx context.Context) ([]domain.AuditTemplate, error)
}

// Store — in-memory каталог опубликованных шаблонов.
// Движок читает только из памяти; персистентный слой участвует лишь в Refresh.
// Шаблоны неизменяемы: наружу отдаются указатели, которые никто не модифицирует.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*domain.AuditTemplate

	loader Loader // Используется только для Refresh()
	logger *zap.Logger
}

func NewStore(loader Loader, logger *zap.Logger) *Store {
	return &Store{
		templates: make(map[string]*domain.AuditTemplate),
		loader:    loader,
		logger:    logger.Named("templates"),
	}
}

// Get — hot path движка при пересчёте баллов.
func (s *Store) Get(id string) (*domain.AuditTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	return t, ok
}

// List возвращает шаблоны по имени, затем по версии.
func (s *Store) List() []domain.AuditTemplate {
	s.mu.RLock()
	out := make([]domain.AuditTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, *t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Add публикует новый шаблон. Существующий ID не перезаписывается.
func (s *Store) Add(t *domain.AuditTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[t.ID]; exists {
		return domain.ErrTemplateExists
	}
	s.templates[t.ID] = t
	return nil
}

// Snapshot — копия каталога для сохранения целой коллекции.
func (s *Store) Snapshot() []domain.AuditTemplate {
	return s.List()
}

// Len — размер каталога.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}

// Refresh выполняет «холодную загрузку» каталога из хранилища (при старте и по сигналу другой реплики).
func (s *Store) Refresh(ctx context.Context) error {
	list, err := s.loader.LoadTemplates(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*domain.AuditTemplate, len(list))
	for i := range list {
		t := list[i]
		next[t.ID] = &t
	}

	s.mu.Lock()
	s.templates = next
	s.mu.Unlock()

	s.logger.Info("template catalogue refreshed", zap.Int("count", len(next)))
	return nil
}
