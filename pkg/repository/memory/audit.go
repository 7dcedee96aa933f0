package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
)

// auditStore is the append-only list of successful token refreshes
type auditStore struct {
	mu     sync.RWMutex
	events []*model.TokenRefreshEvent
}

func newAuditStore() *auditStore {
	return &auditStore{}
}

func (s *auditStore) Append(ctx context.Context, event *model.TokenRefreshEvent) error {
	if event == nil {
		return goerr.New("token refresh event is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *auditStore) List(ctx context.Context) ([]*model.TokenRefreshEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*model.TokenRefreshEvent, len(s.events))
	for i, event := range s.events {
		clone := *event
		events[i] = &clone
	}
	return events, nil
}
