package directory

import (
	"context"
	"sync"

	"github.com/memberhub/mailengine/internal/domain"
)

// StaticDirectory is an in-memory implementation of all three lookup
// interfaces, used in tests and in standalone runs without a membership DB.
type StaticDirectory struct {
	mu           sync.RWMutex
	members      map[string]Recipient
	templates    map[string]Template
	participants map[string][]Recipient
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		members:      make(map[string]Recipient),
		templates:    make(map[string]Template),
		participants: make(map[string][]Recipient),
	}
}

func (d *StaticDirectory) AddMember(email, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[normalize(email)] = Recipient{Email: email, DisplayName: displayName}
}

func (d *StaticDirectory) AddTemplate(t Template) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates[t.Name] = t
}

func (d *StaticDirectory) AddParticipant(eventID, email, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[eventID] = append(d.participants[eventID],
		Recipient{Email: email, DisplayName: displayName})
}

func (d *StaticDirectory) Resolve(_ context.Context, address string) (*Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.members[normalize(address)]
	if !ok {
		return nil, domain.ErrUnknownRecipient
	}
	return &r, nil
}

func (d *StaticDirectory) ResolveTemplate(_ context.Context, name string) (*Template, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.templates[name]
	if !ok {
		return nil, domain.ErrUnknownTemplate
	}
	return &t, nil
}

func (d *StaticDirectory) ListParticipants(_ context.Context, eventID string) ([]Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Recipient(nil), d.participants[eventID]...), nil
}

func (d *StaticDirectory) Templates() TemplateStore {
	return staticTemplateStore{d}
}

type staticTemplateStore struct{ d *StaticDirectory }

func (s staticTemplateStore) Resolve(ctx context.Context, name string) (*Template, error) {
	return s.d.ResolveTemplate(ctx, name)
}

var _ RecipientDirectory = (*StaticDirectory)(nil)
var _ ParticipantSource = (*StaticDirectory)(nil)
