package service

/*
Файл audit_service.go — граница между UI и ядром аудита.
Ядро (engine) синхронно и без I/O; всё вокруг него делается здесь:
- загрузка и сохранение коллекции аудитов через persistence adapter (целиком, last-write-wins);
- аренда аудита на редактирование, чтобы два аудитора не правили один экземпляр;
- после подписи: архив, доставка заявок в модуль обслуживания, сигнал в Redis.
Мутации идут по копии: при любой ошибке (ядро или хранилище) аудит остаётся таким, каким был.
*/

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/compliance-audit-engine/internal/archive"
	"github.com/xela07ax/compliance-audit-engine/internal/connectors"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/engine"
	"github.com/xela07ax/compliance-audit-engine/internal/infra"
	"github.com/xela07ax/compliance-audit-engine/internal/infra/auth"
	"github.com/xela07ax/compliance-audit-engine/internal/scoring"
	"github.com/xela07ax/compliance-audit-engine/internal/storage"
	"go.uber.org/zap"
)

var ErrUnitForbidden = errors.New("auditor is not allowed to audit this unit")

// Archive — приёмник подписанных аудитов (archive.Archiver).
type Archive interface {
	Put(r archive.Record) bool
}

type StartAuditRequest struct {
	TemplateID string    `json:"template_id"`
	UnitID     string    `json:"unit_id"`
	AuditorID  string    `json:"auditor_id,omitempty"` // Перекрывается ID из токена
	Title      string    `json:"title,omitempty"`
	Date       time.Time `json:"date,omitempty"`
}

type AnswerResult struct {
	Session *domain.AuditSimulation `json:"session"`
	Applied bool                    `json:"applied"` // false — вопрос не найден, аудит не изменён
}

type AuditDetail struct {
	Session   *domain.AuditSimulation  `json:"session"`
	Breakdown []scoring.CategoryResult `json:"breakdown"`
}

type AuditFilter struct {
	UnitID     string
	TemplateID string
	Status     domain.AuditStatus
}

type AuditServiceConfig struct {
	LeaseTTL        time.Duration
	Transport       string // Метка метрик доставки
	DispatchTimeout time.Duration
}

type AuditService struct {
	engine    *engine.Engine
	templates engine.TemplateLookup
	repo      storage.Adapter
	lease     storage.Lease
	sink      connectors.WorkOrderSink
	archive   Archive
	signals   Signaler
	metrics   *engine.Metrics
	cfg       AuditServiceConfig
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*domain.AuditSimulation

	dispatches sync.WaitGroup
}

func NewAuditService(
	eng *engine.Engine,
	templates engine.TemplateLookup,
	repo storage.Adapter,
	lease storage.Lease,
	sink connectors.WorkOrderSink,
	arch Archive,
	signals Signaler,
	metrics *engine.Metrics,
	cfg AuditServiceConfig,
	logger *zap.Logger,
) *AuditService {
	if lease == nil {
		lease = storage.NewMemoryLease()
	}
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 15 * time.Minute
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = time.Minute
	}
	if cfg.Transport == "" {
		cfg.Transport = "unknown"
	}
	return &AuditService{
		engine:    eng,
		templates: templates,
		repo:      repo,
		lease:     lease,
		sink:      sink,
		archive:   arch,
		signals:   signals,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.Named("audit-service"),
		sessions:  make(map[string]*domain.AuditSimulation),
	}
}

// Load — «холодная загрузка» аудитов из хранилища при старте.
func (s *AuditService) Load(ctx context.Context) error {
	list, err := s.repo.LoadSimulations(ctx)
	if err != nil {
		return fmt.Errorf("service: load simulations: %w", err)
	}

	sessions := make(map[string]*domain.AuditSimulation, len(list))
	for i := range list {
		a := list[i]
		sessions[a.ID] = &a
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()

	s.logger.Info("audits loaded", zap.Int("count", len(sessions)))
	return nil
}

// Close ждёт завершения фоновой доставки заявок.
func (s *AuditService) Close() {
	s.dispatches.Wait()
}

func (s *AuditService) StartAudit(ctx context.Context, req StartAuditRequest) (*domain.AuditSimulation, error) {
	// 1. Контекст аудита явный: подразделение и аудитор приходят в запросе/токене
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		req.AuditorID = claims.Subject
		if !claims.CanAuditUnit(req.UnitID) {
			return nil, fmt.Errorf("unit %s: %w", req.UnitID, ErrUnitForbidden)
		}
	}

	tpl, ok := s.templates.Get(req.TemplateID)
	if !ok {
		return nil, fmt.Errorf("template %s: %w", req.TemplateID, domain.ErrTemplateNotFound)
	}

	// 2. Снимок шаблона и стартовый балл — в ядре
	a, err := s.engine.Start(tpl, engine.StartParams{
		Title:     req.Title,
		UnitID:    req.UnitID,
		AuditorID: req.AuditorID,
		Date:      req.Date,
	})
	if err != nil {
		return nil, err
	}

	// 3. Persistence
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(ctx, a.ID, a); err != nil {
		return nil, err
	}

	if req.AuditorID != "" {
		_ = s.lease.Acquire(ctx, a.ID, req.AuditorID, s.cfg.LeaseTTL)
	}
	out := a.Clone()
	return &out, nil
}

func (s *AuditService) SetAnswer(ctx context.Context, sessionID, questionID string, patch domain.AnswerPatch) (*AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx, cur); err != nil {
		return nil, err
	}

	work := cur.Clone()
	applied, err := s.engine.SetAnswer(&work, questionID, patch)
	if err != nil {
		return nil, err
	}
	if !applied {
		out := cur.Clone()
		return &AnswerResult{Session: &out, Applied: false}, nil
	}

	if err := s.commit(ctx, sessionID, &work); err != nil {
		return nil, err
	}
	out := work.Clone()
	return &AnswerResult{Session: &out, Applied: true}, nil
}

// Finalize подписывает аудит. Заявки уходят в модуль обслуживания только после того,
// как подписанный аудит сохранён; сбой доставки не откатывает подпись.
func (s *AuditService) Finalize(ctx context.Context, sessionID string, sig engine.SignatureInput) (*engine.FinalizeResult, error) {
	if sig.SignedBy == "" {
		sig.SignedBy = auth.AuditorID(ctx)
	}

	s.mu.Lock()
	cur, err := s.lookup(sessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.acquire(ctx, cur); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// 1. Переход состояния по копии
	work := cur.Clone()
	res, err := s.engine.Finalize(&work, sig)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// 2. Persistence подписанного аудита
	if err := s.commit(ctx, sessionID, &work); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	_ = s.lease.Release(ctx, sessionID, s.holder(ctx, cur))

	// 3. Архив для истории и трендов
	if s.archive != nil {
		if rec, ok := archive.FromSession(&work, len(res.Remediations)); ok {
			s.archive.Put(rec)
		}
	}

	// 4. Заявки на корректирующие наряды — в фоне, ответ аудитору не ждёт модуль обслуживания
	if len(res.Remediations) > 0 && s.sink != nil {
		s.dispatches.Add(1)
		go s.dispatch(context.WithoutCancel(ctx), res.Remediations)
	}

	// 5. Сигнал остальным репликам и читателям трендов
	notify(ctx, s.signals, s.logger, infra.RedisChanAuditFinalized, fmt.Sprintf("%s:%d", work.ID, work.FinalScore))

	session := work.Clone()
	return &engine.FinalizeResult{Session: &session, Remediations: res.Remediations}, nil
}

func (s *AuditService) dispatch(ctx context.Context, reqs []domain.RemediationRequest) {
	defer s.dispatches.Done()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	for _, req := range reqs {
		if err := s.sink.Submit(ctx, req); err != nil {
			s.metrics.RemediationsFailed.WithLabelValues(s.cfg.Transport).Inc()
			s.logger.Error("remediation not delivered to maintenance module",
				zap.String("remediation_id", req.ID),
				zap.String("audit_id", req.AuditID),
				zap.String("question_id", req.QuestionID),
				zap.String("transport", s.cfg.Transport),
				zap.Error(err))
			continue
		}
		s.logger.Info("remediation delivered",
			zap.String("remediation_id", req.ID),
			zap.String("audit_id", req.AuditID),
			zap.Time("deadline", req.Deadline))
	}
}

// ListAudits — история для UI, новые сверху.
func (s *AuditService) ListAudits(_ context.Context, f AuditFilter) []domain.AuditSimulation {
	s.mu.Lock()
	out := make([]domain.AuditSimulation, 0, len(s.sessions))
	for _, a := range s.sessions {
		if f.UnitID != "" && a.UnitID != f.UnitID {
			continue
		}
		if f.TemplateID != "" && a.TemplateID != f.TemplateID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *AuditService) GetAudit(_ context.Context, id string) (*AuditDetail, error) {
	s.mu.Lock()
	cur, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	a := cur.Clone()
	s.mu.Unlock()

	return &AuditDetail{Session: &a, Breakdown: s.engine.Breakdown(&a)}, nil
}

// DiscardAudit удаляет черновик. Подписанный аудит удалить нельзя.
func (s *AuditService) DiscardAudit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.acquire(ctx, cur); err != nil {
		return err
	}

	if err := s.commit(ctx, id, nil); err != nil {
		return err
	}
	_ = s.lease.Release(ctx, id, s.holder(ctx, cur))
	s.logger.Info("draft audit discarded", zap.String("audit_id", id))
	return nil
}

// lookup вызывается под s.mu.
func (s *AuditService) lookup(id string) (*domain.AuditSimulation, error) {
	a, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", id, domain.ErrSessionNotFound)
	}
	return a, nil
}

func (s *AuditService) holder(ctx context.Context, a *domain.AuditSimulation) string {
	if h := auth.AuditorID(ctx); h != "" {
		return h
	}
	return a.AuditorID
}

// acquire берёт или продлевает аренду аудита за текущим аудитором.
func (s *AuditService) acquire(ctx context.Context, a *domain.AuditSimulation) error {
	// Подписанный аудит заморожен: аренду не берём, конфликт аренды не маскирует эту ошибку
	if a.IsCompleted() {
		return &domain.SessionFinalizedError{SessionID: a.ID}
	}
	holder := s.holder(ctx, a)
	if holder == "" {
		return nil
	}
	if err := s.lease.Acquire(ctx, a.ID, holder, s.cfg.LeaseTTL); err != nil {
		if errors.Is(err, domain.ErrSessionLocked) {
			return fmt.Errorf("audit %s: %w", a.ID, err)
		}
		s.logger.Warn("edit lease unavailable, continuing without it", zap.String("audit_id", a.ID), zap.Error(err))
	}
	return nil
}

// commit применяет изменение (next == nil — удаление) и сохраняет коллекцию целиком.
// При ошибке хранилища изменение откатывается. Вызывается под s.mu.
func (s *AuditService) commit(ctx context.Context, id string, next *domain.AuditSimulation) error {
	prev, existed := s.sessions[id]
	if next == nil {
		delete(s.sessions, id)
	} else {
		s.sessions[id] = next
	}

	list := make([]domain.AuditSimulation, 0, len(s.sessions))
	for _, a := range s.sessions {
		list = append(list, *a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	if err := s.repo.SaveSimulations(ctx, list); err != nil {
		if existed {
			s.sessions[id] = prev
		} else {
			delete(s.sessions, id)
		}
		s.logger.Error("failed to persist audits", zap.String("audit_id", id), zap.Error(err))
		return fmt.Errorf("service: save simulations: %w", err)
	}
	return nil
}
