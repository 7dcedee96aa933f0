package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

type presenceStore struct {
	mu      sync.RWMutex
	records map[model.UserID]*model.PresenceRecord
	meta    model.PresenceMetadata
}

func newPresenceStore() *presenceStore {
	return &presenceStore{
		records: make(map[model.UserID]*model.PresenceRecord),
	}
}

func (s *presenceStore) Get(ctx context.Context, id model.UserID) (*model.PresenceRecord, error) {
	if id == "" {
		return nil, goerr.New("user ID is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, goerr.Wrap(types.ErrNotFound, "presence record not found", goerr.V(types.UserIDKey, id))
	}

	return record.Clone(), nil
}

func (s *presenceStore) Put(ctx context.Context, record *model.PresenceRecord) error {
	if record == nil || record.ID == "" {
		return goerr.New("presence record has no ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record.Clone()
	return nil
}

func (s *presenceStore) List(ctx context.Context) ([]*model.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*model.PresenceRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	return records, nil
}

func (s *presenceStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *presenceStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[model.UserID]*model.PresenceRecord)
	return nil
}

func (s *presenceStore) GetMetadata(ctx context.Context) (*model.PresenceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := s.meta
	return &meta, nil
}

func (s *presenceStore) SaveMetadata(ctx context.Context, meta *model.PresenceMetadata) error {
	if meta == nil {
		return goerr.New("presence metadata is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta = *meta
	return nil
}
