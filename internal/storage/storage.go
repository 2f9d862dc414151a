// Package storage описывает persistence adapter: чтение и перезапись коллекций целиком
// (без частичных обновлений), и цепочку бэкендов с порядком приоритета.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

var ErrNoBackends = errors.New("storage: no backends configured")

// Adapter — контракт хранилища. Семантика last-write-wins: Save перезаписывает коллекцию.
type Adapter interface {
	LoadTemplates(ctx context.Context) ([]domain.AuditTemplate, error)
	SaveTemplates(ctx context.Context, list []domain.AuditTemplate) error
	LoadSimulations(ctx context.Context) ([]domain.AuditSimulation, error)
	SaveSimulations(ctx context.Context, list []domain.AuditSimulation) error
}

// Backend — именованный адаптер в цепочке.
type Backend struct {
	Name    string
	Adapter Adapter
}

// Chain перебирает бэкенды в порядке приоритета.
//   - Load: первый успешно ответивший бэкенд.
//   - Save: сначала первый (авторитетный); его ошибка прерывает запись, ошибки остальных только логируются.
type Chain struct {
	backends []Backend
	logger   *zap.Logger
}

func NewChain(logger *zap.Logger, backends ...Backend) *Chain {
	return &Chain{
		backends: backends,
		logger:   logger.Named("storage"),
	}
}

func (c *Chain) Backends() []string {
	names := make([]string, 0, len(c.backends))
	for _, b := range c.backends {
		names = append(names, b.Name)
	}
	return names
}

func (c *Chain) LoadTemplates(ctx context.Context) ([]domain.AuditTemplate, error) {
	return load(ctx, c, "templates", func(ctx context.Context, a Adapter) ([]domain.AuditTemplate, error) {
		return a.LoadTemplates(ctx)
	})
}

func (c *Chain) LoadSimulations(ctx context.Context) ([]domain.AuditSimulation, error) {
	return load(ctx, c, "simulations", func(ctx context.Context, a Adapter) ([]domain.AuditSimulation, error) {
		return a.LoadSimulations(ctx)
	})
}

func (c *Chain) SaveTemplates(ctx context.Context, list []domain.AuditTemplate) error {
	return c.save(ctx, "templates", func(ctx context.Context, a Adapter) error {
		return a.SaveTemplates(ctx, list)
	})
}

func (c *Chain) SaveSimulations(ctx context.Context, list []domain.AuditSimulation) error {
	return c.save(ctx, "simulations", func(ctx context.Context, a Adapter) error {
		return a.SaveSimulations(ctx, list)
	})
}

func load[T any](ctx context.Context, c *Chain, collection string, fn func(context.Context, Adapter) ([]T, error)) ([]T, error) {
	if len(c.backends) == 0 {
		return nil, ErrNoBackends
	}

	var errs []error
	for _, b := range c.backends {
		list, err := fn(ctx, b.Adapter)
		if err == nil {
			if list == nil {
				list = make([]T, 0)
			}
			return list, nil
		}
		c.logger.Warn("backend load failed, trying next",
			zap.String("backend", b.Name),
			zap.String("collection", collection),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
	}
	return nil, fmt.Errorf("storage: load %s: %w", collection, errors.Join(errs...))
}

func (c *Chain) save(ctx context.Context, collection string, fn func(context.Context, Adapter) error) error {
	if len(c.backends) == 0 {
		return ErrNoBackends
	}

	for i, b := range c.backends {
		err := fn(ctx, b.Adapter)
		if err == nil {
			continue
		}
		// Сбой основного бэкенда отменяет запись целиком: вторичные не должны получить несостоявшееся состояние
		if i == 0 {
			return fmt.Errorf("storage: save %s to %s: %w", collection, b.Name, err)
		}
		// Вторичные бэкенды — реплики/кэш, их сбой не отменяет запись
		c.logger.Error("secondary backend save failed",
			zap.String("backend", b.Name),
			zap.String("collection", collection),
			zap.Error(err))
	}
	return nil
}
