package archive

import (
	"context"

	"go.uber.org/zap"
)

// LogStorage пишет записи архива в структурированный лог. Используется, когда Postgres не подключён:
// тренды тогда собираются из логов.
type LogStorage struct {
	logger *zap.Logger
}

func NewLogStorage(logger *zap.Logger) *LogStorage {
	return &LogStorage{logger: logger.Named("archive-log")}
}

func (s *LogStorage) WriteBatch(_ context.Context, records []Record) error {
	for _, r := range records {
		s.logger.Info("audit archived",
			zap.String("audit_id", r.AuditID),
			zap.String("template_id", r.TemplateID),
			zap.String("unit_id", r.UnitID),
			zap.String("auditor_id", r.AuditorID),
			zap.Int("final_score", r.FinalScore),
			zap.Int("remediations", r.Remediations),
			zap.String("signature_sha256", r.SignatureSHA256),
			zap.Time("completed_at", r.CompletedAt))
	}
	return nil
}
