package repository

import (
	"context"
	"sync"
	"time"

	"github.com/memberhub/mailengine/internal/domain"
)

// MockQueueRepository is a hand-written, in-memory implementation of
// QueueRepository used in unit tests. No mock-generation library needed.
// It reproduces the claim semantics of the pg implementation: ClaimDue only
// flips rows that are still pending, in dispatch order.
type MockQueueRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.QueueItem
	marks map[string]bool // eventID + "\x00" + tier

	// Optional error overrides — set in tests to simulate failure paths.
	InsertErr   error
	ClaimDueErr error
	GetByIDErr  error
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{
		items: make(map[string]*domain.QueueItem),
		marks: make(map[string]bool),
	}
}

func (m *MockQueueRepository) Insert(_ context.Context, item *domain.QueueItem) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneItem(item)
	m.items[item.ID] = clone
	return nil
}

func (m *MockQueueRepository) InsertBatch(ctx context.Context, items []*domain.QueueItem) error {
	for _, item := range items {
		if err := m.Insert(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockQueueRepository) GetByID(_ context.Context, id string) (*domain.QueueItem, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (m *MockQueueRepository) FindPendingDuplicate(_ context.Context, dupKey, contentHash string) (*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.items {
		if item.Status == domain.StatusPending &&
			item.DuplicateKey == dupKey && item.ContentHash == contentHash {
			return cloneItem(item), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockQueueRepository) ClaimDue(_ context.Context, limit int, now time.Time) ([]*domain.QueueItem, error) {
	if m.ClaimDueErr != nil {
		return nil, m.ClaimDueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*domain.QueueItem
	for _, item := range m.items {
		if item.Status == domain.StatusPending && !item.ScheduledAt.After(now) {
			due = append(due, item)
		}
	}
	sortForDispatch(due)
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*domain.QueueItem, 0, len(due))
	for _, item := range due {
		item.Status = domain.StatusSending
		item.UpdatedAt = now
		claimed = append(claimed, cloneItem(item))
	}
	return claimed, nil
}

func (m *MockQueueRepository) MarkSent(_ context.Context, id, provider string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok && item.Status == domain.StatusSending {
		item.Status = domain.StatusSent
		item.SentVia = &provider
		item.SentAt = &sentAt
		item.ErrorMessage = nil
		item.UpdatedAt = sentAt
	}
	return nil
}

func (m *MockQueueRepository) RescheduleRetry(_ context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok && item.Status == domain.StatusSending {
		item.Status = domain.StatusPending
		item.RetryCount = retryCount
		item.ScheduledAt = nextAttempt
		item.ErrorMessage = &errMsg
		item.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockQueueRepository) MarkFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok && item.Status == domain.StatusSending {
		item.Status = domain.StatusFailed
		item.ErrorMessage = &errMsg
		item.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockQueueRepository) ReleaseStuck(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for _, item := range m.items {
		if item.Status == domain.StatusSending && item.UpdatedAt.Before(cutoff) {
			item.Status = domain.StatusPending
			item.UpdatedAt = time.Now().UTC()
			released++
		}
	}
	return released, nil
}

func (m *MockQueueRepository) DeletePending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.Status == domain.StatusSending || item.Status == domain.StatusSent {
		return domain.ErrNotCancellable
	}
	delete(m.items, id)
	return nil
}

func (m *MockQueueRepository) CountByStatus(_ context.Context) (map[domain.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.Status]int)
	for _, item := range m.items {
		counts[item.Status]++
	}
	return counts, nil
}

func (m *MockQueueRepository) CountStatusSince(_ context.Context, status domain.Status, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, item := range m.items {
		if item.Status != status {
			continue
		}
		at := item.UpdatedAt
		if item.SentAt != nil {
			at = *item.SentAt
		}
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) CountAdmittedSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, item := range m.items {
		if !item.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) ListFailed(_ context.Context, limit int) ([]*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var failed []*domain.QueueItem
	for _, item := range m.items {
		if item.Status == domain.StatusFailed {
			failed = append(failed, cloneItem(item))
		}
	}
	if len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (m *MockQueueRepository) ResetFailed(_ context.Context, limit int, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset := 0
	for _, item := range m.items {
		if reset >= limit {
			break
		}
		if item.Status == domain.StatusFailed {
			item.Status = domain.StatusPending
			item.RetryCount = 0
			item.ScheduledAt = now
			item.ErrorMessage = nil
			item.UpdatedAt = now
			reset++
		}
	}
	return reset, nil
}

func (m *MockQueueRepository) DeleteTerminalBefore(_ context.Context, cutoff time.Time, includeSent bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, item := range m.items {
		if item.CreatedAt.After(cutoff) || item.CreatedAt.Equal(cutoff) {
			continue
		}
		if item.Status == domain.StatusFailed || (includeSent && item.Status == domain.StatusSent) {
			delete(m.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockQueueRepository) DeleteNonTerminal(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, item := range m.items {
		if !item.Status.Terminal() {
			delete(m.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockQueueRepository) MarkReminderScheduled(_ context.Context, eventID, tier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventID + "\x00" + tier
	if m.marks[key] {
		return false, nil
	}
	m.marks[key] = true
	return true, nil
}

// All returns every stored item, for test assertions.
func (m *MockQueueRepository) All() []*domain.QueueItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.QueueItem, 0, len(m.items))
	for _, item := range m.items {
		result = append(result, cloneItem(item))
	}
	return result
}

func cloneItem(item *domain.QueueItem) *domain.QueueItem {
	clone := *item
	if item.Context != nil {
		clone.Context = make(map[string]string, len(item.Context))
		for k, v := range item.Context {
			clone.Context[k] = v
		}
	}
	return &clone
}
