package models

import "time"

// Status is the delivery status of a send record. Transitions follow the
// precedence rules applied by the reconciler; they are not strictly
// monotonic in time because provider events arrive out of order.
type Status string

const (
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusBounced     Status = "bounced"
	StatusHardBounced Status = "hard_bounced"
	StatusSoftBounced Status = "soft_bounced"
	StatusComplaint   Status = "complaint"
	StatusOpened      Status = "opened"
	StatusClicked     Status = "clicked"
	StatusRejected    Status = "rejected"
	StatusDelayed     Status = "delayed"
	StatusFailed      Status = "failed"
)

// OutranksDelay reports whether the status must not be regressed to
// "delayed" by a late delivery_delay event.
func (s Status) OutranksDelay() bool {
	switch s {
	case StatusDelivered, StatusBounced, StatusHardBounced, StatusSoftBounced, StatusClicked, StatusOpened:
		return true
	}
	return false
}

// SendRecord is the persisted representation of one outbound email and its
// current delivery state.
type SendRecord struct {
	ID                string            `json:"id"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Recipient         string            `json:"recipient"`
	Sender            string            `json:"sender"`
	Subject           string            `json:"subject,omitempty"`
	Status            Status            `json:"status"`
	SentAt            time.Time         `json:"sent_at"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	RetryCount        int               `json:"retry_count"`
	Headers           map[string]string `json:"headers,omitempty"`
	Provider          string            `json:"provider"`
	SizeBytes         int64             `json:"size_bytes"`
	AttachmentCount   int               `json:"attachment_count"`
	CampaignID        string            `json:"campaign_id,omitempty"`
	TemplateName      string            `json:"template_name,omitempty"`
	// Synthesized marks placeholder records created by the reconciler when
	// an event arrived before (or without) a matching send record.
	Synthesized bool      `json:"synthesized"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
