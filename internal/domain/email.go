package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Priority orders dispatch. Lower values drain first: a system-critical
// notice always goes out before an event reminder, which always goes out
// before a bulk campaign send.
type Priority int

const (
	PrioritySystem Priority = iota
	PriorityEvent
	PriorityCampaign
)

var priorityNames = map[Priority]string{
	PrioritySystem:   "system",
	PriorityEvent:    "event",
	PriorityCampaign: "campaign",
}

func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, ErrInvalidPriority
}

func (p Priority) IsValid() bool {
	_, ok := priorityNames[p]
	return ok
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status tracks the lifecycle of a queue item.
// Legal transitions: pending → sending → {sent | pending (retry) | failed}.
// sent and failed are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// QueueItem is one email delivery record, the unit of work for the engine.
// Subject and bodies are rendered at admission time and frozen, so retries
// resend exactly what was originally admitted; Context keeps the raw render
// input for audit.
type QueueItem struct {
	ID            string            `json:"id"`
	Recipient     string            `json:"recipient"`
	RecipientName string            `json:"recipient_name,omitempty"`
	EventID       *string           `json:"event_id,omitempty"`
	CampaignID    *string           `json:"campaign_id,omitempty"`
	TemplateName  string            `json:"template_name"`
	TemplateID    string            `json:"template_id"`
	Subject       string            `json:"subject"`
	HTMLBody      string            `json:"html_body"`
	TextBody      string            `json:"text_body"`
	Context       map[string]string `json:"context,omitempty"`
	Priority      Priority          `json:"priority"`
	Status        Status            `json:"status"`
	ScheduledAt   time.Time         `json:"scheduled_at"`
	RetryCount    int               `json:"retry_count"`
	MaxRetries    int               `json:"max_retries"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
	SentVia       *string           `json:"sent_via,omitempty"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
	ContentHash   string            `json:"content_hash"`
	DuplicateKey  string            `json:"duplicate_key"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ContentHash derives the dedup hash from the template identity plus the
// rendered content. Two admissions with the same template and identical
// rendered output hash the same regardless of context map ordering.
func ContentHash(templateID, subject, html, text string) string {
	h := sha256.New()
	for _, part := range []string{templateID, subject, html, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DuplicateKey identifies "the same logical send": recipient + template +
// correlation ids. Admission rejects a second pending item with the same
// key and content hash.
func DuplicateKey(recipient, templateName string, eventID, campaignID *string) string {
	parts := []string{strings.ToLower(recipient), templateName}
	if eventID != nil {
		parts = append(parts, "event:"+*eventID)
	}
	if campaignID != nil {
		parts = append(parts, "campaign:"+*campaignID)
	}
	return strings.Join(parts, "|")
}

// SubmitRequest is one admission call.
type SubmitRequest struct {
	Recipient    string            `json:"recipient"`
	TemplateName string            `json:"template_name"`
	Context      map[string]string `json:"context,omitempty"`
	Priority     Priority          `json:"priority"`
	ScheduledAt  *time.Time        `json:"scheduled_at,omitempty"`
	EventID      *string           `json:"event_id,omitempty"`
	CampaignID   *string           `json:"campaign_id,omitempty"`
}

func (r *SubmitRequest) Validate() error {
	if r.Recipient == "" {
		return ErrInvalidRecipient
	}
	if _, err := mail.ParseAddress(r.Recipient); err != nil {
		return ErrInvalidRecipient
	}
	if r.TemplateName == "" {
		return ErrInvalidTemplateName
	}
	if !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// SubmitResult reports the outcome of one admission. Duplicate=true means an
// equivalent pending item already existed; Item then points at the existing
// record and nothing new was queued.
type SubmitResult struct {
	Item      *QueueItem `json:"item"`
	Duplicate bool       `json:"duplicate"`
}

// TickResult summarises one dispatcher tick.
type TickResult struct {
	Processed int `json:"processed"` // items claimed and attempted
	Sent      int `json:"sent"`
	Deferred  int `json:"deferred"` // transient failures rescheduled for retry
	Failed    int `json:"failed"`   // retry ceiling hit, now terminal
	Released  int `json:"released"` // stuck sending items swept back to pending
}

// Health is the coarse queue health classification.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// QueueStats is the read-side aggregation served by the monitor.
type QueueStats struct {
	Pending      int     `json:"pending"`
	Sending      int     `json:"sending"`
	Sent         int     `json:"sent"`
	Failed       int     `json:"failed"`
	SentToday    int     `json:"sent_today"`
	FailedToday  int     `json:"failed_today"`
	SentLastHour int     `json:"sent_last_hour"`
	SuccessRate  float64 `json:"success_rate"`
	Health       Health  `json:"health"`
}

// TierReport records what happened to one reminder tier: either how many
// items were scheduled, or why the tier was skipped.
type TierReport struct {
	Tier       string    `json:"tier"`
	TargetTime time.Time `json:"target_time"`
	Scheduled  int       `json:"scheduled"`
	Skipped    bool      `json:"skipped"`
	SkipReason string    `json:"skip_reason,omitempty"`
}
