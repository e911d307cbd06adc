package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberhub/mailengine/internal/domain"
)

// PgDirectory serves all three lookup interfaces from the membership
// database. One struct because the queries share a pool and are trivial.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) Resolve(ctx context.Context, address string) (*Recipient, error) {
	var r Recipient
	err := d.pool.QueryRow(ctx, `
		SELECT email, display_name FROM members
		WHERE lower(email) = lower($1) AND active`, address).
		Scan(&r.Email, &r.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownRecipient
	}
	if err != nil {
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	return &r, nil
}

func (d *PgDirectory) ResolveTemplate(ctx context.Context, name string) (*Template, error) {
	var t Template
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, subject_template, html_template, text_template, active
		FROM email_templates WHERE name = $1`, name).
		Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Text, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownTemplate
	}
	if err != nil {
		return nil, fmt.Errorf("resolve template: %w", err)
	}
	return &t, nil
}

func (d *PgDirectory) ListParticipants(ctx context.Context, eventID string) ([]Recipient, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT m.email, m.display_name
		FROM event_participants p
		JOIN members m ON lower(m.email) = lower(p.email) AND m.active
		WHERE p.event_id = $1
		ORDER BY m.email`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var result []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.Email, &r.DisplayName); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Templates adapts PgDirectory to the TemplateStore interface, which uses
// the method name Resolve.
func (d *PgDirectory) Templates() TemplateStore {
	return pgTemplateStore{d}
}

type pgTemplateStore struct{ d *PgDirectory }

func (s pgTemplateStore) Resolve(ctx context.Context, name string) (*Template, error) {
	return s.d.ResolveTemplate(ctx, name)
}

var _ RecipientDirectory = (*PgDirectory)(nil)
var _ ParticipantSource = (*PgDirectory)(nil)

// normalize strips display padding from an address for map keys.
func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
