package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

// SignatureInput — захваченная подпись (например, data-URL PNG с планшета).
type SignatureInput struct {
	Data     string
	SignedBy string
}

// FinalizeResult возвращается вместе: сервис сохраняет аудит и пересылает заявки в модуль обслуживания.
type FinalizeResult struct {
	Session      *domain.AuditSimulation     `json:"session"`
	Remediations []domain.RemediationRequest `json:"remediations"`
}

// Finalize переводит аудит DRAFT -> COMPLETED.
// Подпись — жёсткий шлюз: без неё аудит остаётся в DRAFT. Повторный вызов отклоняется
// с SessionFinalizedError, подписанная запись не меняется.
func (e *Engine) Finalize(s *domain.AuditSimulation, sig SignatureInput) (*FinalizeResult, error) {
	// 1. Проверка перехода конечного автомата
	if err := s.CanTransitionTo(domain.StatusCompleted); err != nil {
		if errors.Is(err, domain.ErrSessionFinalized) {
			e.metrics.FinalizeRejected.WithLabelValues("already_finalized").Inc()
		}
		return nil, err
	}

	// 2. Подпись обязательна
	if strings.TrimSpace(sig.Data) == "" {
		e.metrics.FinalizeRejected.WithLabelValues("missing_signature").Inc()
		return nil, &domain.MissingSignatureError{SessionID: s.ID}
	}

	// 3. Фиксируем финальный балл по замороженному снимку и переводим статус
	e.recompute(s)
	now := e.now()
	digest := sha256.Sum256([]byte(sig.Data))
	signedBy := sig.SignedBy
	if signedBy == "" {
		signedBy = s.AuditorID
	}
	s.Signature = &domain.Signature{
		Data:     sig.Data,
		SignedBy: signedBy,
		SignedAt: now,
		SHA256:   hex.EncodeToString(digest[:]),
	}
	s.Status = domain.StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now

	// 4. Критические провалы -> заявки на корректирующие наряды
	remediations := e.rule.Derive(s)

	e.metrics.AuditsFinalized.WithLabelValues(s.TemplateID).Inc()
	e.metrics.FinalScore.Observe(float64(s.FinalScore))
	if len(remediations) > 0 {
		e.metrics.RemediationsEmitted.WithLabelValues(s.UnitID).Add(float64(len(remediations)))
	}

	e.logger.Info("audit finalized",
		zap.String("audit_id", s.ID),
		zap.String("unit_id", s.UnitID),
		zap.Int("final_score", s.FinalScore),
		zap.Int("remediations", len(remediations)))

	return &FinalizeResult{Session: s, Remediations: remediations}, nil
}
