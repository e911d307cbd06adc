package domain_test

import (
	"testing"
	"time"

	"github.com/memberhub/mailengine/internal/domain"
)

func TestSubmitRequest_Validate(t *testing.T) {
	valid := domain.SubmitRequest{
		Recipient:    "alice@example.org",
		TemplateName: "welcome",
		Priority:     domain.PrioritySystem,
	}

	t.Run("valid request passes", func(t *testing.T) {
		if err := valid.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty recipient", func(t *testing.T) {
		r := valid
		r.Recipient = ""
		if err := r.Validate(); err != domain.ErrInvalidRecipient {
			t.Fatalf("expected ErrInvalidRecipient, got %v", err)
		}
	})

	t.Run("malformed address", func(t *testing.T) {
		r := valid
		r.Recipient = "not-an-address"
		if err := r.Validate(); err != domain.ErrInvalidRecipient {
			t.Fatalf("expected ErrInvalidRecipient, got %v", err)
		}
	})

	t.Run("empty template name", func(t *testing.T) {
		r := valid
		r.TemplateName = ""
		if err := r.Validate(); err != domain.ErrInvalidTemplateName {
			t.Fatalf("expected ErrInvalidTemplateName, got %v", err)
		}
	})

	t.Run("invalid priority", func(t *testing.T) {
		r := valid
		r.Priority = domain.Priority(42)
		if err := r.Validate(); err != domain.ErrInvalidPriority {
			t.Fatalf("expected ErrInvalidPriority, got %v", err)
		}
	})
}

func TestPriority_Ordering(t *testing.T) {
	// The dispatch ORDER BY relies on the numeric values: system drains
	// before event, event before campaign.
	if !(domain.PrioritySystem < domain.PriorityEvent && domain.PriorityEvent < domain.PriorityCampaign) {
		t.Fatal("priority values are not ordered system < event < campaign")
	}
}

func TestParsePriority(t *testing.T) {
	for _, name := range []string{"system", "event", "campaign"} {
		p, err := domain.ParsePriority(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if p.String() != name {
			t.Fatalf("round trip %q: got %q", name, p.String())
		}
	}
	if _, err := domain.ParsePriority("urgent"); err != domain.ErrInvalidPriority {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
}

func TestContentHash(t *testing.T) {
	a := domain.ContentHash("tpl-1", "Hello", "<p>Hi</p>", "Hi")
	b := domain.ContentHash("tpl-1", "Hello", "<p>Hi</p>", "Hi")
	if a != b {
		t.Fatal("identical inputs must hash identically")
	}

	if a == domain.ContentHash("tpl-2", "Hello", "<p>Hi</p>", "Hi") {
		t.Fatal("template identity must affect the hash")
	}
	if a == domain.ContentHash("tpl-1", "Hello", "<p>Hi!</p>", "Hi") {
		t.Fatal("rendered content must affect the hash")
	}
	// Field boundaries are part of the hash input: moving a character across
	// a boundary must change the digest.
	if domain.ContentHash("t", "ab", "c", "") == domain.ContentHash("t", "a", "bc", "") {
		t.Fatal("field boundaries must affect the hash")
	}
}

func TestDuplicateKey(t *testing.T) {
	ev := "ev-1"
	camp := "camp-1"

	base := domain.DuplicateKey("Alice@Example.org", "welcome", nil, nil)
	if base != domain.DuplicateKey("alice@example.org", "welcome", nil, nil) {
		t.Fatal("recipient casing must not affect the key")
	}
	if base == domain.DuplicateKey("alice@example.org", "welcome", &ev, nil) {
		t.Fatal("event correlation must affect the key")
	}
	if base == domain.DuplicateKey("alice@example.org", "welcome", nil, &camp) {
		t.Fatal("campaign correlation must affect the key")
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   domain.Status
		terminal bool
	}{
		{domain.StatusPending, false},
		{domain.StatusSending, false},
		{domain.StatusSent, true},
		{domain.StatusFailed, true},
	}
	for _, tc := range tests {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Fatalf("%s: terminal=%v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestPriority_JSONRoundTrip(t *testing.T) {
	data, err := domain.PriorityEvent.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"event"` {
		t.Fatalf("expected \"event\", got %s", data)
	}

	var p domain.Priority
	if err := p.UnmarshalJSON([]byte(`"campaign"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p != domain.PriorityCampaign {
		t.Fatalf("expected campaign, got %v", p)
	}
	if err := p.UnmarshalJSON([]byte(`"urgent"`)); err != domain.ErrInvalidPriority {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
}

func TestQueueItem_ZeroScheduledAtIsEligible(t *testing.T) {
	// Admission defaults ScheduledAt to "now"; an explicitly past time is
	// accepted and immediately eligible rather than dropped.
	past := time.Now().Add(-time.Hour)
	req := domain.SubmitRequest{
		Recipient:    "bob@example.org",
		TemplateName: "welcome",
		Priority:     domain.PriorityEvent,
		ScheduledAt:  &past,
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("past scheduled_at must validate: %v", err)
	}
}
