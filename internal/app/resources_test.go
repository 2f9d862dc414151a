package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/infra"
	"github.com/xela07ax/compliance-audit-engine/internal/storage"
	"go.uber.org/zap"
)

func TestOpen_FileOnly(t *testing.T) {
	cfg := &infra.Config{Storage: infra.StorageConfig{Backends: []string{"file"}, FileDir: t.TempDir()}}

	res, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer res.Close()

	assert.Nil(t, res.Pool)
	assert.Nil(t, res.Redis)
	assert.Equal(t, []string{"file"}, res.Repo.Backends())

	require.NoError(t, res.Repo.SaveTemplates(context.Background(), []domain.AuditTemplate{{ID: "t1"}}))
	got, err := res.Repo.LoadTemplates(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBuildChain_Errors(t *testing.T) {
	tests := []struct {
		name     string
		backends []string
		wantErr  error
	}{
		{"postgres without pool", []string{"postgres"}, nil},
		{"redis without client", []string{"redis"}, nil},
		{"unknown", []string{"s3"}, nil},
		{"empty", nil, storage.ErrNoBackends},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildChain(infra.StorageConfig{Backends: tt.backends}, &Resources{}, zap.NewNop())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

type fakeSetNX struct {
	taken map[string]bool
	err   error
}

func (f *fakeSetNX) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.taken[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.taken[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestAcquireOnce(t *testing.T) {
	rdb := &fakeSetNX{taken: map[string]bool{}}

	assert.True(t, AcquireOnce(context.Background(), rdb, zap.NewNop(), "seed", time.Minute))
	assert.False(t, AcquireOnce(context.Background(), rdb, zap.NewNop(), "seed", time.Minute))

	broken := &fakeSetNX{err: errors.New("connection refused")}
	assert.True(t, AcquireOnce(context.Background(), broken, zap.NewNop(), "seed", time.Minute))
	assert.True(t, AcquireOnce(context.Background(), nil, zap.NewNop(), "seed", time.Minute))
}
