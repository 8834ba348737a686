package directory

import (
	"context"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/models"
)

// MemoryDirectory is an in-process Directory for tests and local runs.
// It is safe for concurrent use.
type MemoryDirectory struct {
	mu       sync.RWMutex
	byFace   map[string]models.Identity
	bySource map[string]string // source key -> face id
}

var _ Directory = (*MemoryDirectory)(nil)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byFace:   make(map[string]models.Identity),
		bySource: make(map[string]string),
	}
}

func (m *MemoryDirectory) Lookup(_ context.Context, faceID string) (*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byFace[faceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &id, nil
}

func (m *MemoryDirectory) LookupSource(ctx context.Context, sourceKey string) (*models.Identity, error) {
	m.mu.RLock()
	faceID, ok := m.bySource[sourceKey]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Lookup(ctx, faceID)
}

func (m *MemoryDirectory) Register(_ context.Context, identity models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byFace[identity.FaceID]; ok {
		return ErrAlreadyExists
	}
	if identity.SourceKey != "" {
		if _, ok := m.bySource[identity.SourceKey]; ok {
			return ErrAlreadyExists
		}
		m.bySource[identity.SourceKey] = identity.FaceID
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	m.byFace[identity.FaceID] = identity
	return nil
}

func (m *MemoryDirectory) Ping(context.Context) error { return nil }

// Len returns the number of identity records.
func (m *MemoryDirectory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byFace)
}
