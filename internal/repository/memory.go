package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mdon/mailtrack/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.SendRecord
	// byProvider indexes records by provider message id.
	byProvider map[string]string
	events     map[string][]*models.DeliveryEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*models.SendRecord),
		byProvider: make(map[string]string),
		events:     make(map[string][]*models.DeliveryEvent),
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRecord(r), nil
}

func (s *MemoryStore) FindByProviderID(ctx context.Context, providerMessageID string) (*models.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[providerMessageID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRecord(s.records[id]), nil
}

func (s *MemoryStore) Create(ctx context.Context, record *models.SendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ProviderMessageID != "" {
		if _, exists := s.byProvider[record.ProviderMessageID]; exists {
			return ErrDuplicateProviderID
		}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	s.records[record.ID] = copyRecord(record)
	if record.ProviderMessageID != "" {
		s.byProvider[record.ProviderMessageID] = record.ID
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, record *models.SendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[record.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if old.ProviderMessageID != "" && old.ProviderMessageID != record.ProviderMessageID {
		delete(s.byProvider, old.ProviderMessageID)
	}
	record.UpdatedAt = time.Now().UTC()
	s.records[record.ID] = copyRecord(record)
	if record.ProviderMessageID != "" {
		s.byProvider[record.ProviderMessageID] = record.ID
	}
	return nil
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event *models.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	cp := *event
	s.events[event.RecordID] = append(s.events[event.RecordID], &cp)
	return nil
}

func (s *MemoryStore) EventExists(ctx context.Context, recordID string, eventType models.EventType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events[recordID] {
		if e.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ClickEventExists(ctx context.Context, recordID, linkURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events[recordID] {
		if e.Type == models.EventClick && e.LinkURL == linkURL {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, recordID string) ([]*models.DeliveryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]*models.DeliveryEvent, 0, len(s.events[recordID]))
	for _, e := range s.events[recordID] {
		cp := *e
		events = append(events, &cp)
	}
	return events, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

// RecordCount reports how many send records exist. Used by tests.
func (s *MemoryStore) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(r *models.SendRecord) *models.SendRecord {
	cp := *r
	if r.Headers != nil {
		cp.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			cp.Headers[k] = v
		}
	}
	if r.DeliveredAt != nil {
		t := *r.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}
