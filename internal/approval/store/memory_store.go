package store

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/genpire/genpire/internal/approval/domain"
)

// memoryStore keys records by product so a second Save for the same product
// replaces the first, matching the durable store's upsert.
type memoryStore struct {
	mu        sync.RWMutex
	byProduct map[snowflake.ID]domain.ApprovalRecord
}

func NewMemoryStore() domain.Store {
	return &memoryStore{byProduct: make(map[snowflake.ID]domain.ApprovalRecord)}
}

func (s *memoryStore) Save(ctx context.Context, record *domain.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byProduct[record.ProductID]; ok {
		// Keep the original identity so handles stay valid across revisions.
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	s.byProduct[record.ProductID] = *record
	return nil
}

func (s *memoryStore) FindByID(ctx context.Context, id snowflake.ID) (*domain.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.byProduct {
		if record.ID == id {
			copied := record
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) FindByProduct(ctx context.Context, productID snowflake.ID) (*domain.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byProduct[productID]
	if !ok {
		return nil, nil
	}
	copied := record
	return &copied, nil
}
