// Package file — локальный бэкенд: каждая коллекция хранится одним JSON-файлом.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

const (
	templatesFile   = "templates.json"
	simulationsFile = "simulations.json"
)

type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) LoadTemplates(ctx context.Context) ([]domain.AuditTemplate, error) {
	list := make([]domain.AuditTemplate, 0)
	return list, s.read(ctx, templatesFile, &list)
}

func (s *Store) SaveTemplates(ctx context.Context, list []domain.AuditTemplate) error {
	return s.write(ctx, templatesFile, list)
}

func (s *Store) LoadSimulations(ctx context.Context) ([]domain.AuditSimulation, error) {
	list := make([]domain.AuditSimulation, 0)
	return list, s.read(ctx, simulationsFile, &list)
}

func (s *Store) SaveSimulations(ctx context.Context, list []domain.AuditSimulation) error {
	return s.write(ctx, simulationsFile, list)
}

// read: отсутствующий файл — пустая коллекция.
func (s *Store) read(ctx context.Context, name string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("file: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("file: decode %s: %w", name, err)
	}
	return nil
}

// write перезаписывает коллекцию атомарно: временный файл + rename.
func (s *Store) write(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op после успешного rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("file: replace %s: %w", name, err)
	}
	return nil
}
