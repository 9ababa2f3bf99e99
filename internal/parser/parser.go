// Package parser decodes queue envelopes into validated provider events.
//
// Decoding is two-level: the queue message body is a pub/sub envelope whose
// Message field carries the provider event as a JSON string. All failure
// modes are typed ParseError values; nothing here panics on bad input.
package parser

import (
	"encoding/json"
	"strings"
)

// sentinelBody is the plain-text ping the provider publishes when a topic
// subscription is first wired up. It is not JSON and not an event.
const sentinelBody = "Successfully validated SNS topic for Amazon SES event publishing."

const (
	envelopeNotification             = "Notification"
	envelopeSubscriptionConfirmation = "SubscriptionConfirmation"
	envelopeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Parse turns a raw queue message body into a validated Event.
func Parse(body string) (*Event, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, &ParseError{Kind: KindEmptyBody}
	}

	if trimmed == sentinelBody {
		return nil, &ParseError{Kind: KindControlMessage, Detail: "subscription validation sentinel"}
	}

	var env Envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, &ParseError{Kind: KindInvalidJSON, Detail: "envelope is not valid JSON", Err: err}
	}

	switch env.Type {
	case envelopeNotification:
	case envelopeSubscriptionConfirmation:
		return nil, ErrSubscriptionConfirmation
	case envelopeUnsubscribeConfirmation:
		return nil, ErrUnsubscribeConfirmation
	default:
		return nil, &ParseError{Kind: KindInvalidFormat, Detail: "envelope Type is not Notification"}
	}

	if strings.TrimSpace(env.Message) == "" {
		return nil, &ParseError{Kind: KindInvalidFormat, Detail: "Notification envelope has no Message"}
	}

	var evt Event
	if err := json.Unmarshal([]byte(env.Message), &evt); err != nil {
		return nil, &ParseError{Kind: KindInvalidJSON, Detail: "inner Message is not valid JSON", Err: err}
	}
	evt.Raw = json.RawMessage(env.Message)

	var missing []string
	if strings.TrimSpace(evt.EventType) == "" {
		missing = append(missing, "eventType")
	}
	if strings.TrimSpace(evt.Mail.MessageID) == "" {
		missing = append(missing, "mail.messageId")
	}
	if len(missing) > 0 {
		return nil, &ParseError{Kind: KindMissingFields, Detail: strings.Join(missing, ", ")}
	}

	return &evt, nil
}
