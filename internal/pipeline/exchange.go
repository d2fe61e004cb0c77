package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/repositories"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

// Exchange hands step outputs to later steps of the same run.
type Exchange interface {
	Put(ctx context.Context, runID, key string, payload []byte) error
	// Get returns ErrNoPayload when nothing was pushed under key.
	Get(ctx context.Context, runID, key string) ([]byte, error)
}

// ErrNoPayload means an upstream step never pushed its output.
var ErrNoPayload = errors.New("no payload pushed")

// MemoryExchange keeps payloads in process memory.
type MemoryExchange struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryExchange creates an empty in-process exchange.
func NewMemoryExchange() *MemoryExchange {
	return &MemoryExchange{data: make(map[string][]byte)}
}

func (m *MemoryExchange) Put(_ context.Context, runID, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[runID+"/"+key] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryExchange) Get(_ context.Context, runID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[runID+"/"+key]
	if !ok {
		return nil, ErrNoPayload
	}
	return append([]byte(nil), payload...), nil
}

// DBExchange stores payloads in the stage_exchanges table so each step can
// run in its own process.
type DBExchange struct {
	db    bun.IDB
	clock clockwork.Clock
}

// NewDBExchange creates a database-backed exchange.
func NewDBExchange(db bun.IDB, clock clockwork.Clock) *DBExchange {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DBExchange{db: db, clock: clock}
}

func (d *DBExchange) Put(ctx context.Context, runID, key string, payload []byte) error {
	return repositories.PutExchange(ctx, d.db, runID, key, payload, d.clock.Now())
}

func (d *DBExchange) Get(ctx context.Context, runID, key string) ([]byte, error) {
	payload, err := repositories.GetExchange(ctx, d.db, runID, key)
	if errors.Is(err, repositories.ErrExchangeNotFound) {
		return nil, ErrNoPayload
	}
	return payload, err
}

func push(ctx context.Context, ex Exchange, runID, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return stageerr.Transform("push "+key, err)
	}
	if err := ex.Put(ctx, runID, key, payload); err != nil {
		return stageerr.Persistence("push "+key, err)
	}
	return nil
}

func pull(ctx context.Context, ex Exchange, runID, key string, v any) error {
	payload, err := ex.Get(ctx, runID, key)
	if errors.Is(err, ErrNoPayload) {
		return stageerr.New(stageerr.KindConfig, "pull "+key, fmt.Errorf("run %s: %w", runID, err))
	}
	if err != nil {
		return stageerr.Persistence("pull "+key, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return stageerr.Transform("pull "+key, err)
	}
	return nil
}
