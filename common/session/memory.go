package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Records are stored encoded,
// so callers never share state with the store.
type MemoryStore struct {
	data   map[string]*memoryEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger Logger
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store. A zero ttl keeps records until
// they are deleted.
func NewMemoryStore(ttl time.Duration, logger Logger) *MemoryStore {
	s := &MemoryStore{
		data:   make(map[string]*memoryEntry),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	go s.cleanup(time.Minute)

	return s
}

// Get returns the editor's record or ErrNotFound
func (s *MemoryStore) Get(ctx context.Context, editorID string) (*Record, error) {
	s.mu.RLock()
	entry, exists := s.data[editorID]
	s.mu.RUnlock()

	if !exists || s.expired(entry) {
		return nil, ErrNotFound
	}
	return decodeRecord(entry.value)
}

// Put stores the record, replacing any previous one for the editor
func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	value, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	entry := &memoryEntry{value: value}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.EditorID] = entry

	s.logger.Debug("session stored", "editor_id", rec.EditorID, "run_id", rec.RunID)
	return nil
}

// Delete removes the editor's record
func (s *MemoryStore) Delete(ctx context.Context, editorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, editorID)
	return nil
}

// List returns all live records ordered by editor id
func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.data))
	for _, entry := range s.data {
		if s.expired(entry) {
			continue
		}
		rec, err := decodeRecord(entry.value)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].EditorID < records[j].EditorID
	})
	return records, nil
}

// Close stops the cleanup goroutine and drops all records
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*memoryEntry)
	s.logger.Info("memory session store closed")
	return nil
}

func (s *MemoryStore) expired(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}

// cleanup removes expired entries periodically
func (s *MemoryStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purge()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.data {
		if s.expired(entry) {
			delete(s.data, key)
		}
	}
}

// Stats returns store statistics
func (s *MemoryStore) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"entries": len(s.data),
		"type":    "memory",
	}
}
