package progress

import (
	"context"
	"sync"

	"github.com/scripttrimmer/api/internal/model"
)

// MemoryStore is the in-process Store used when Redis is not configured and
// in tests. Same semantics as RedisStore minus cross-process visibility:
// latest-only retention, best-effort fan-out, fresh view per subscription.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]model.ProgressUpdate
	subs   map[string]map[*memorySubscription]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest: make(map[string]model.ProgressUpdate),
		subs:   make(map[string]map[*memorySubscription]struct{}),
	}
}

func (s *MemoryStore) Publish(ctx context.Context, key string, update model.ProgressUpdate) error {
	s.mu.Lock()
	s.latest[key] = update
	subs := make([]*memorySubscription, 0, len(s.subs[key]))
	for sub := range s.subs[key] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(update)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, key string) (Subscription, error) {
	sub := &memorySubscription{
		store:   s,
		key:     key,
		updates: make(chan model.ProgressUpdate, 16),
	}

	s.mu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = make(map[*memorySubscription]struct{})
	}
	s.subs[key][sub] = struct{}{}
	s.mu.Unlock()

	return sub, nil
}

func (s *MemoryStore) Latest(ctx context.Context, key string) (*model.ProgressUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	update, ok := s.latest[key]
	if !ok {
		return nil, nil
	}
	return &update, nil
}

func (s *MemoryStore) remove(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs, ok := s.subs[sub.key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.subs, sub.key)
		}
	}
}

type memorySubscription struct {
	store   *MemoryStore
	key     string
	updates chan model.ProgressUpdate

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// deliver drops the update when the subscriber's buffer is full. A slow
// consumer may skip intermediate updates; the latest is always readable via
// Latest.
func (s *memorySubscription) deliver(update model.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- update:
	default:
	}
}

func (s *memorySubscription) Updates() <-chan model.ProgressUpdate {
	return s.updates
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.store.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.updates)
		s.mu.Unlock()
	})
	return nil
}
