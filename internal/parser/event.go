package parser

import (
	"encoding/json"
	"time"
)

// Envelope is the outer pub/sub wrapper around a provider event. Only
// Notification envelopes carry an event; the confirmation types are
// handshake control messages.
type Envelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp"`
}

// Event is a decoded provider delivery event. Exactly one of the
// type-specific sections is populated, keyed by EventType.
type Event struct {
	EventType        string            `json:"eventType"`
	Mail             Mail              `json:"mail"`
	Bounce           *Bounce           `json:"bounce"`
	Complaint        *Complaint        `json:"complaint"`
	Delivery         *Delivery         `json:"delivery"`
	Open             *Open             `json:"open"`
	Click            *Click            `json:"click"`
	Reject           *Reject           `json:"reject"`
	DeliveryDelay    *DeliveryDelay    `json:"deliveryDelay"`
	Subscription     *Subscription     `json:"subscription"`
	RenderingFailure *RenderingFailure `json:"failure"`

	// Raw is the inner message body as received, kept verbatim for the
	// event audit trail.
	Raw json.RawMessage `json:"-"`
}

// Mail describes the original outbound message the event refers to.
type Mail struct {
	Timestamp     time.Time           `json:"timestamp"`
	MessageID     string              `json:"messageId"`
	Source        string              `json:"source"`
	Destination   []string            `json:"destination"`
	Headers       []Header            `json:"headers"`
	CommonHeaders map[string]any      `json:"commonHeaders"`
	Tags          map[string][]string `json:"tags"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Bounce struct {
	BounceType        string             `json:"bounceType"`
	BounceSubType     string             `json:"bounceSubType"`
	BouncedRecipients []BouncedRecipient `json:"bouncedRecipients"`
	Timestamp         time.Time          `json:"timestamp"`
	FeedbackID        string             `json:"feedbackId"`
}

type BouncedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Action         string `json:"action"`
	Status         string `json:"status"`
	DiagnosticCode string `json:"diagnosticCode"`
}

type Complaint struct {
	ComplainedRecipients  []ComplainedRecipient `json:"complainedRecipients"`
	ComplaintFeedbackType string                `json:"complaintFeedbackType"`
	Timestamp             time.Time             `json:"timestamp"`
	FeedbackID            string                `json:"feedbackId"`
	UserAgent             string                `json:"userAgent"`
}

type ComplainedRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

type Delivery struct {
	Timestamp            time.Time `json:"timestamp"`
	ProcessingTimeMillis int64     `json:"processingTimeMillis"`
	Recipients           []string  `json:"recipients"`
	SMTPResponse         string    `json:"smtpResponse"`
	ReportingMTA         string    `json:"reportingMTA"`
}

type Open struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
}

type Click struct {
	Timestamp time.Time           `json:"timestamp"`
	IPAddress string              `json:"ipAddress"`
	UserAgent string              `json:"userAgent"`
	Link      string              `json:"link"`
	LinkTags  map[string][]string `json:"linkTags"`
}

type Reject struct {
	Reason string `json:"reason"`
}

type DeliveryDelay struct {
	Timestamp         time.Time          `json:"timestamp"`
	DelayType         string             `json:"delayType"`
	ExpirationTime    time.Time          `json:"expirationTime"`
	DelayedRecipients []DelayedRecipient `json:"delayedRecipients"`
}

type DelayedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Status         string `json:"status"`
	DiagnosticCode string `json:"diagnosticCode"`
}

type Subscription struct {
	Timestamp      time.Time `json:"timestamp"`
	ContactList    string    `json:"contactList"`
	SubscribeToAll bool      `json:"subscribeToAllTopics"`
}

type RenderingFailure struct {
	TemplateName string `json:"templateName"`
	ErrorMessage string `json:"errorMessage"`
}

// correlationTag and correlationHeader carry the internal send-record id
// attached by the sending side. Tags are checked first since headers may
// be truncated by the provider.
const (
	correlationTag    = "mailtrack_id"
	correlationHeader = "X-Mailtrack-Id"
)

// CorrelationID returns the internal send-record id carried by the event,
// or "" when the event has none.
func (e *Event) CorrelationID() string {
	if vals, ok := e.Mail.Tags[correlationTag]; ok && len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	for _, h := range e.Mail.Headers {
		if h.Name == correlationHeader && h.Value != "" {
			return h.Value
		}
	}
	return ""
}

// Subject returns the message subject from the common headers, if present.
func (e *Event) Subject() string {
	if s, ok := e.Mail.CommonHeaders["subject"].(string); ok {
		return s
	}
	return ""
}

// HeaderMap flattens the mail header list into a map. The first value wins
// for repeated header names.
func (e *Event) HeaderMap() map[string]string {
	if len(e.Mail.Headers) == 0 {
		return nil
	}
	m := make(map[string]string, len(e.Mail.Headers))
	for _, h := range e.Mail.Headers {
		if _, ok := m[h.Name]; !ok {
			m[h.Name] = h.Value
		}
	}
	return m
}

// OccurredAt returns the timestamp of the type-specific section, falling
// back to the mail timestamp and then to now.
func (e *Event) OccurredAt() time.Time {
	var ts time.Time
	switch {
	case e.Delivery != nil:
		ts = e.Delivery.Timestamp
	case e.Bounce != nil:
		ts = e.Bounce.Timestamp
	case e.Complaint != nil:
		ts = e.Complaint.Timestamp
	case e.Open != nil:
		ts = e.Open.Timestamp
	case e.Click != nil:
		ts = e.Click.Timestamp
	case e.DeliveryDelay != nil:
		ts = e.DeliveryDelay.Timestamp
	case e.Subscription != nil:
		ts = e.Subscription.Timestamp
	}
	if ts.IsZero() {
		ts = e.Mail.Timestamp
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ts
}
