package postgres

/*
Файл store.go реализует persistence adapter поверх PostgreSQL.
Коллекции перезаписываются целиком в одной транзакции (DELETE + COPY), так что читатели
никогда не видят половину коллекции. Документ хранится в jsonb, индексируемые поля
вынесены в колонки для выборок истории.
*/

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadTemplates(ctx context.Context) ([]domain.AuditTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM audit_templates ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query templates: %w", err)
	}
	return collectDocs[domain.AuditTemplate](rows)
}

func (s *Store) LoadSimulations(ctx context.Context) ([]domain.AuditSimulation, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM audit_simulations ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query simulations: %w", err)
	}
	return collectDocs[domain.AuditSimulation](rows)
}

func (s *Store) SaveTemplates(ctx context.Context, list []domain.AuditTemplate) error {
	rows := make([][]any, 0, len(list))
	for _, t := range list {
		doc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("postgres: encode template %s: %w", t.ID, err)
		}
		var prev *string
		if t.PreviousID != "" {
			p := t.PreviousID
			prev = &p
		}
		rows = append(rows, []any{t.ID, t.Name, t.Version, prev, doc, t.CreatedAt})
	}

	return s.replace(ctx, "audit_templates",
		[]string{"id", "name", "version", "previous_id", "doc", "created_at"}, rows)
}

func (s *Store) SaveSimulations(ctx context.Context, list []domain.AuditSimulation) error {
	rows := make([][]any, 0, len(list))
	for _, a := range list {
		doc, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("postgres: encode simulation %s: %w", a.ID, err)
		}
		rows = append(rows, []any{a.ID, a.TemplateID, a.UnitID, string(a.Status), a.FinalScore, doc, a.UpdatedAt})
	}

	return s.replace(ctx, "audit_simulations",
		[]string{"id", "template_id", "unit_id", "status", "final_score", "doc", "updated_at"}, rows)
}

// replace перезаписывает таблицу целиком: 1. DELETE, 2. COPY, 3. COMMIT.
func (s *Store) replace(ctx context.Context, table string, columns []string, rows [][]any) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("postgres: clear %s: %w", table, err)
	}
	if len(rows) > 0 {
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("postgres: copy into %s: %w", table, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", table, err)
	}
	return nil
}

func collectDocs[T any](rows pgx.Rows) ([]T, error) {
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	out := make([]T, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("postgres: scan doc: %w", err)
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("postgres: decode doc: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return out, nil
}
