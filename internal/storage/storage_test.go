package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

type memAdapter struct {
	templates   []domain.AuditTemplate
	simulations []domain.AuditSimulation
	loadErr     error
	saveErr     error
	saves       int
}

func (m *memAdapter) LoadTemplates(context.Context) ([]domain.AuditTemplate, error) {
	return m.templates, m.loadErr
}

func (m *memAdapter) SaveTemplates(_ context.Context, list []domain.AuditTemplate) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.templates = list
	return nil
}

func (m *memAdapter) LoadSimulations(context.Context) ([]domain.AuditSimulation, error) {
	return m.simulations, m.loadErr
}

func (m *memAdapter) SaveSimulations(_ context.Context, list []domain.AuditSimulation) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.simulations = list
	return nil
}

func TestChain_LoadFallsThroughToNextBackend(t *testing.T) {
	primary := &memAdapter{loadErr: errors.New("connection refused")}
	secondary := &memAdapter{templates: []domain.AuditTemplate{{ID: "t1"}}}
	c := NewChain(zap.NewNop(), Backend{"postgres", primary}, Backend{"file", secondary})

	got, err := c.LoadTemplates(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
}

func TestChain_LoadAllFail(t *testing.T) {
	c := NewChain(zap.NewNop(),
		Backend{"postgres", &memAdapter{loadErr: errors.New("pg down")}},
		Backend{"redis", &memAdapter{loadErr: errors.New("redis down")}})

	_, err := c.LoadSimulations(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg down")
	assert.Contains(t, err.Error(), "redis down")
}

func TestChain_LoadNilBecomesEmpty(t *testing.T) {
	c := NewChain(zap.NewNop(), Backend{"mem", &memAdapter{}})

	got, err := c.LoadSimulations(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestChain_SaveWritesAllBackends(t *testing.T) {
	primary, secondary := &memAdapter{}, &memAdapter{}
	c := NewChain(zap.NewNop(), Backend{"a", primary}, Backend{"b", secondary})
	list := []domain.AuditSimulation{{ID: "s1"}}

	require.NoError(t, c.SaveSimulations(context.Background(), list))

	assert.Equal(t, list, primary.simulations)
	assert.Equal(t, list, secondary.simulations)
}

func TestChain_SaveErrorsOnlyFromPrimary(t *testing.T) {
	tests := []struct {
		name        string
		primaryErr  error
		secondErr   error
		wantErr     bool
		secondSaves int
	}{
		{"both ok", nil, nil, false, 1},
		{"secondary fails", nil, errors.New("cache down"), false, 1},
		{"primary fails", errors.New("disk full"), nil, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &memAdapter{saveErr: tt.primaryErr}
			secondary := &memAdapter{saveErr: tt.secondErr}
			c := NewChain(zap.NewNop(), Backend{"a", primary}, Backend{"b", secondary})

			err := c.SaveTemplates(context.Background(), []domain.AuditTemplate{{ID: "t"}})

			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, 1, primary.saves)
			assert.Equal(t, tt.secondSaves, secondary.saves)
		})
	}
}

func TestChain_PrimaryFailureLeavesSecondaryUntouched(t *testing.T) {
	committed := []domain.AuditSimulation{{ID: "s1"}}
	primary := &memAdapter{}
	secondary := &memAdapter{simulations: committed}
	c := NewChain(zap.NewNop(), Backend{"a", primary}, Backend{"b", secondary})

	primary.saveErr = errors.New("disk full")
	err := c.SaveSimulations(context.Background(), []domain.AuditSimulation{{ID: "s1"}, {ID: "s2"}})

	require.Error(t, err)
	assert.Equal(t, committed, secondary.simulations)
	assert.Zero(t, secondary.saves)
}

func TestChain_NoBackends(t *testing.T) {
	c := NewChain(zap.NewNop())
	_, err := c.LoadTemplates(context.Background())
	assert.ErrorIs(t, err, ErrNoBackends)
	assert.ErrorIs(t, c.SaveTemplates(context.Background(), nil), ErrNoBackends)
}

func TestMemoryLease(t *testing.T) {
	l := NewMemoryLease()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "s1", "alice", time.Minute))
	require.NoError(t, l.Acquire(ctx, "s1", "alice", time.Minute), "holder may renew")
	assert.ErrorIs(t, l.Acquire(ctx, "s1", "bob", time.Minute), domain.ErrSessionLocked)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, l.Acquire(ctx, "s1", "bob", time.Minute), "expired lease is taken over")

	require.NoError(t, l.Release(ctx, "s1", "alice"), "release by non-holder is ignored")
	assert.ErrorIs(t, l.Acquire(ctx, "s1", "alice", time.Minute), domain.ErrSessionLocked)
	require.NoError(t, l.Release(ctx, "s1", "bob"))
	assert.NoError(t, l.Acquire(ctx, "s1", "alice", time.Minute))
}
