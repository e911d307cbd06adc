package repository

import (
	"context"
	"time"

	"github.com/memberhub/mailengine/internal/domain"
)

// QueueRepository defines all persistence operations for the email queue.
// The pgx implementation is in pg_queue_repo.go.
// Tests use a hand-written in-memory mock (mock_queue_repo.go).
type QueueRepository interface {
	Insert(ctx context.Context, item *domain.QueueItem) error
	InsertBatch(ctx context.Context, items []*domain.QueueItem) error
	GetByID(ctx context.Context, id string) (*domain.QueueItem, error)

	// FindPendingDuplicate returns a pending item carrying the same
	// duplicate key and content hash, or ErrNotFound.
	FindPendingDuplicate(ctx context.Context, dupKey, contentHash string) (*domain.QueueItem, error)

	// ClaimDue atomically flips up to limit due pending items to sending and
	// returns them ordered by (priority, scheduled_at, created_at). A second
	// concurrent call cannot claim the same rows.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]*domain.QueueItem, error)

	MarkSent(ctx context.Context, id, provider string, sentAt time.Time) error
	RescheduleRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id, errMsg string) error

	// ReleaseStuck requeues sending items last touched before cutoff back to
	// pending and returns how many were released.
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int, error)

	// DeletePending cancels an item that has not been claimed or sent.
	// Returns ErrNotFound if the id does not exist and ErrNotCancellable if
	// the item is sending or sent.
	DeletePending(ctx context.Context, id string) error

	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	CountStatusSince(ctx context.Context, status domain.Status, since time.Time) (int, error)
	CountAdmittedSince(ctx context.Context, since time.Time) (int, error)

	ListFailed(ctx context.Context, limit int) ([]*domain.QueueItem, error)

	// ResetFailed gives up to limit failed items a fresh retry budget:
	// status back to pending, retry_count zeroed, eligible now.
	ResetFailed(ctx context.Context, limit int, now time.Time) (int, error)

	// DeleteTerminalBefore removes failed items created before cutoff.
	// Sent items are delivery history and are only removed when includeSent
	// is set explicitly.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, includeSent bool) (int, error)
	DeleteNonTerminal(ctx context.Context) (int, error)

	// MarkReminderScheduled records that reminders for (eventID, tier) have
	// been planned. Returns false if the pair was already marked.
	MarkReminderScheduled(ctx context.Context, eventID, tier string) (bool, error)
}
