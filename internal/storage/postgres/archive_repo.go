package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/compliance-audit-engine/internal/archive"
)

type ArchiveRepo struct {
	pool *pgxpool.Pool
}

func NewArchiveRepo(pool *pgxpool.Pool) *ArchiveRepo {
	return &ArchiveRepo{pool: pool}
}

// WriteBatch — пакетная вставка. Повторная запись того же аудита игнорируется.
func (r *ArchiveRepo) WriteBatch(ctx context.Context, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_archive без archived_at
	const numFields = 9
	var placeholders strings.Builder
	vals := make([]any, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, rec := range records {
		doc, err := json.Marshal(rec.Session)
		if err != nil {
			return fmt.Errorf("postgres: encode archived audit %s: %w", rec.AuditID, err)
		}

		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		vals = append(vals,
			rec.AuditID, rec.TemplateID, rec.UnitID, rec.AuditorID,
			rec.FinalScore, rec.Remediations, rec.SignatureSHA256, rec.CompletedAt, doc,
		)
	}

	query := "INSERT INTO audit_archive (audit_id, template_id, unit_id, auditor_id, final_score, remediations, signature_sha256, completed_at, doc) VALUES " +
		placeholders.String() + " ON CONFLICT (audit_id) DO NOTHING"

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write archive batch: %w", err)
	}
	return nil
}
