package archive

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"go.uber.org/zap"
)

type recordingStorage struct {
	mu      sync.Mutex
	batches [][]Record
	err     error
}

func (s *recordingStorage) WriteBatch(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Record(nil), records...))
	return s.err
}

func (s *recordingStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestArchiver_DrainsOnStop(t *testing.T) {
	repo := &recordingStorage{}
	a := NewArchiver(repo, Config{BufferSize: 100, BatchSize: 10, FlushInterval: time.Hour}, nil, zap.NewNop())
	a.Start()

	for i := 0; i < 25; i++ {
		require.True(t, a.Put(Record{AuditID: strconv.Itoa(i)}))
	}
	a.Stop()

	assert.Equal(t, 25, repo.total())
	require.Len(t, repo.batches, 3)
	assert.Len(t, repo.batches[0], 10)
	assert.Len(t, repo.batches[2], 5)
}

func TestArchiver_FlushesOnTicker(t *testing.T) {
	repo := &recordingStorage{}
	a := NewArchiver(repo, Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, nil, zap.NewNop())
	a.Start()
	defer a.Stop()

	a.Put(Record{AuditID: "x"})

	assert.Eventually(t, func() bool { return repo.total() == 1 }, time.Second, 10*time.Millisecond)
}

func TestArchiver_RejectsAfterStop(t *testing.T) {
	a := NewArchiver(&recordingStorage{}, Config{}, nil, zap.NewNop())
	a.Start()
	a.Stop()
	a.Stop()

	assert.False(t, a.Put(Record{AuditID: "late"}))
}

func TestArchiver_OverflowSheds(t *testing.T) {
	// Воркер не запущен: буфер не вычитывается
	a := NewArchiver(&recordingStorage{}, Config{BufferSize: 1}, nil, zap.NewNop())

	assert.True(t, a.Put(Record{AuditID: "1"}))
	assert.False(t, a.Put(Record{AuditID: "2"}))
}

func TestArchiver_FlushErrorDoesNotStopWorker(t *testing.T) {
	repo := &recordingStorage{err: errors.New("db down")}
	a := NewArchiver(repo, Config{BatchSize: 1, FlushInterval: time.Hour}, nil, zap.NewNop())
	a.Start()

	a.Put(Record{AuditID: "1"})
	a.Put(Record{AuditID: "2"})
	a.Stop()

	assert.Equal(t, 2, repo.total())
}

func TestFromSession(t *testing.T) {
	done := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s := &domain.AuditSimulation{
		ID: "a1", TemplateID: "t1", UnitID: "u1", AuditorID: "aud",
		Status: domain.StatusCompleted, FinalScore: 17,
		Signature:   &domain.Signature{SHA256: "abc"},
		CompletedAt: &done,
	}

	r, ok := FromSession(s, 1)

	require.True(t, ok)
	assert.Equal(t, "a1", r.AuditID)
	assert.Equal(t, 17, r.FinalScore)
	assert.Equal(t, "abc", r.SignatureSHA256)
	assert.Equal(t, done, r.CompletedAt)
	assert.Equal(t, 1, r.Remediations)

	_, ok = FromSession(&domain.AuditSimulation{Status: domain.StatusDraft}, 0)
	assert.False(t, ok)
}
