package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// Lease — аренда аудита на редактирование. Держатель — аудитор; аренда продлевается
// каждой записью, другой аудитор до истечения TTL получает domain.ErrSessionLocked.
type Lease interface {
	Acquire(ctx context.Context, sessionID, holder string, ttl time.Duration) error
	Release(ctx context.Context, sessionID, holder string) error
}

// MemoryLease — аренды внутри одного процесса (dev, тесты, бэкенд file).
type MemoryLease struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	holder  string
	expires time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{leases: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLease) Acquire(_ context.Context, sessionID, holder string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[sessionID]; ok && cur.holder != holder && now.Before(cur.expires) {
		return domain.ErrSessionLocked
	}
	l.leases[sessionID] = memoryLease{holder: holder, expires: now.Add(ttl)}
	return nil
}

func (l *MemoryLease) Release(_ context.Context, sessionID, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[sessionID]; ok && cur.holder == holder {
		delete(l.leases, sessionID)
	}
	return nil
}
