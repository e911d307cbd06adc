package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberhub/mailengine/internal/domain"
)

const queueColumns = `
	id, recipient, recipient_name, event_id, campaign_id,
	template_name, template_id, subject, html_body, text_body, render_context,
	priority, status, scheduled_at, retry_count, max_retries,
	sent_at, sent_via, error_message, content_hash, duplicate_key,
	created_at, updated_at`

type pgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPgQueueRepository returns a QueueRepository backed by PostgreSQL.
func NewPgQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgQueueRepository{pool: pool}
}

func (r *pgQueueRepository) Insert(ctx context.Context, item *domain.QueueItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_queue
			(id, recipient, recipient_name, event_id, campaign_id,
			 template_name, template_id, subject, html_body, text_body, render_context,
			 priority, status, scheduled_at, retry_count, max_retries,
			 content_hash, duplicate_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		item.ID, item.Recipient, item.RecipientName, item.EventID, item.CampaignID,
		item.TemplateName, item.TemplateID, item.Subject, item.HTMLBody, item.TextBody, item.Context,
		int(item.Priority), item.Status, item.ScheduledAt, item.RetryCount, item.MaxRetries,
		item.ContentHash, item.DuplicateKey, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) InsertBatch(ctx context.Context, items []*domain.QueueItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO email_queue
				(id, recipient, recipient_name, event_id, campaign_id,
				 template_name, template_id, subject, html_body, text_body, render_context,
				 priority, status, scheduled_at, retry_count, max_retries,
				 content_hash, duplicate_key, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
			item.ID, item.Recipient, item.RecipientName, item.EventID, item.CampaignID,
			item.TemplateName, item.TemplateID, item.Subject, item.HTMLBody, item.TextBody, item.Context,
			int(item.Priority), item.Status, item.ScheduledAt, item.RetryCount, item.MaxRetries,
			item.ContentHash, item.DuplicateKey, item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert batch item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM email_queue WHERE id = $1`, id)

	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return item, err
}

func (r *pgQueueRepository) FindPendingDuplicate(ctx context.Context, dupKey, contentHash string) (*domain.QueueItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM email_queue
		WHERE status = 'pending' AND duplicate_key = $1 AND content_hash = $2
		LIMIT 1`, dupKey, contentHash)

	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return item, err
}

// ClaimDue uses FOR UPDATE SKIP LOCKED so overlapping ticks never claim the
// same rows. The UPDATE ... RETURNING does not guarantee row order, so the
// result is re-sorted in the service layer via the returned slice order here.
func (r *pgQueueRepository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM email_queue
			WHERE status = 'pending' AND scheduled_at <= $2
			ORDER BY priority ASC, scheduled_at ASC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE email_queue q
		SET status = 'sending', updated_at = $2
		FROM due
		WHERE q.id = due.id
		RETURNING `+qualify(queueColumns, "q"), limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}
	sortForDispatch(items)
	return items, nil
}

func (r *pgQueueRepository) MarkSent(ctx context.Context, id, provider string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'sent', sent_via = $1, sent_at = $2, error_message = NULL, updated_at = $2
		WHERE id = $3 AND status = 'sending'`, provider, sentAt, id)
	return err
}

func (r *pgQueueRepository) RescheduleRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'pending', retry_count = $1, scheduled_at = $2,
		    error_message = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'sending'`, retryCount, nextAttempt, errMsg, id)
	return err
}

func (r *pgQueueRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'failed', error_message = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'sending'`, errMsg, id)
	return err
}

func (r *pgQueueRepository) ReleaseStuck(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'sending' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stuck items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgQueueRepository) DeletePending(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM email_queue
		WHERE id = $1 AND status IN ('pending', 'failed')`, id)
	if err != nil {
		return fmt.Errorf("delete pending item: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "no such row" from "row exists but is sending/sent".
	var status domain.Status
	err = r.pool.QueryRow(ctx,
		`SELECT status FROM email_queue WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check item status: %w", err)
	}
	return domain.ErrNotCancellable
}

func (r *pgQueueRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *pgQueueRepository) CountStatusSince(ctx context.Context, status domain.Status, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_queue
		WHERE status = $1 AND COALESCE(sent_at, updated_at) >= $2`,
		status, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s since: %w", status, err)
	}
	return n, nil
}

func (r *pgQueueRepository) CountAdmittedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_queue WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admitted since: %w", err)
	}
	return n, nil
}

func (r *pgQueueRepository) ListFailed(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM email_queue
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed items: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

func (r *pgQueueRepository) ResetFailed(ctx context.Context, limit int, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'pending', retry_count = 0, scheduled_at = $2,
		    error_message = NULL, updated_at = $2
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE status = 'failed'
			ORDER BY updated_at ASC
			LIMIT $1
		)`, limit, now)
	if err != nil {
		return 0, fmt.Errorf("reset failed items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgQueueRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, includeSent bool) (int, error) {
	query := `DELETE FROM email_queue WHERE status = 'failed' AND created_at < $1`
	if includeSent {
		query = `DELETE FROM email_queue WHERE status IN ('failed', 'sent') AND created_at < $1`
	}
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgQueueRepository) DeleteNonTerminal(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM email_queue WHERE status IN ('pending', 'sending')`)
	if err != nil {
		return 0, fmt.Errorf("delete non-terminal items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgQueueRepository) MarkReminderScheduled(ctx context.Context, eventID, tier string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO event_reminder_marks (event_id, tier, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id, tier) DO NOTHING`, eventID, tier)
	if err != nil {
		return false, fmt.Errorf("mark reminder scheduled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ---- helpers ----

// scanQueueItem reads a single queue row from any pgx row type.
func scanQueueItem(row pgx.Row) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var priority int
	err := row.Scan(
		&item.ID, &item.Recipient, &item.RecipientName, &item.EventID, &item.CampaignID,
		&item.TemplateName, &item.TemplateID, &item.Subject, &item.HTMLBody, &item.TextBody, &item.Context,
		&priority, &item.Status, &item.ScheduledAt, &item.RetryCount, &item.MaxRetries,
		&item.SentAt, &item.SentVia, &item.ErrorMessage, &item.ContentHash, &item.DuplicateKey,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Priority = domain.Priority(priority)
	return &item, nil
}

func scanQueueItems(rows pgx.Rows) ([]*domain.QueueItem, error) {
	var result []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
