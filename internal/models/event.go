package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType enumerates the closed set of provider delivery events.
type EventType string

const (
	EventSend             EventType = "send"
	EventDelivery         EventType = "delivery"
	EventBounce           EventType = "bounce"
	EventComplaint        EventType = "complaint"
	EventOpen             EventType = "open"
	EventClick            EventType = "click"
	EventReject           EventType = "reject"
	EventDeliveryDelay    EventType = "delivery_delay"
	EventSubscription     EventType = "subscription"
	EventRenderingFailure EventType = "rendering_failure"
)

// ErrUnknownEventType is returned for event types outside the closed set.
// The caller logs and drops the event; it is never fatal.
type ErrUnknownEventType struct {
	Value string
}

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Value)
}

// ParseEventType maps a provider wire value ("Bounce", "deliveryDelay",
// "Rendering Failure", ...) to its EventType.
func ParseEventType(raw string) (EventType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "") {
	case "send":
		return EventSend, nil
	case "delivery":
		return EventDelivery, nil
	case "bounce":
		return EventBounce, nil
	case "complaint":
		return EventComplaint, nil
	case "open":
		return EventOpen, nil
	case "click":
		return EventClick, nil
	case "reject":
		return EventReject, nil
	case "deliverydelay":
		return EventDeliveryDelay, nil
	case "subscription":
		return EventSubscription, nil
	case "renderingfailure":
		return EventRenderingFailure, nil
	default:
		return "", &ErrUnknownEventType{Value: raw}
	}
}

// Deduped reports whether at most one event of this type is stored per
// record. Bounce, complaint and reject repeat meaningfully and are kept
// every time.
func (t EventType) Deduped() bool {
	switch t {
	case EventDelivery, EventOpen, EventClick:
		return true
	}
	return false
}

// DeliveryEvent is one immutable fact about a send record.
type DeliveryEvent struct {
	ID         string          `json:"id"`
	RecordID   string          `json:"record_id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	BounceType    string    `json:"bounce_type,omitempty"`
	ComplaintType string    `json:"complaint_type,omitempty"`
	LinkURL       string    `json:"link_url,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
