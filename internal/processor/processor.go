// Package processor applies provider delivery events to send records.
//
// It is the middle of the pipeline: the poller and the dead-letter
// recovery path both hand it raw queue message bodies, and it parses,
// dispatches on the event type and reconciles the store. Events arrive
// out of order and at least once; convergence relies on the precedence
// rules here, not on temporal ordering.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mdon/mailtrack/internal/logging"
	"github.com/mdon/mailtrack/internal/metrics"
	"github.com/mdon/mailtrack/internal/models"
	"github.com/mdon/mailtrack/internal/parser"
	"github.com/mdon/mailtrack/internal/repository"
)

// ClickDedupScope selects how click events are deduplicated.
type ClickDedupScope string

const (
	// ClickDedupRecord keeps at most one click event per record.
	ClickDedupRecord ClickDedupScope = "record"
	// ClickDedupLink keeps at most one click event per record per link URL.
	ClickDedupLink ClickDedupScope = "link"
)

// Outcome reports what became of a message.
type Outcome string

const (
	// OutcomeApplied means the event was reconciled into the store.
	OutcomeApplied Outcome = "applied"
	// OutcomeDropped means the message was intentionally discarded
	// (control message, unparseable body, unknown event type). Dropped
	// messages must still be deleted from the queue; retrying them can
	// never succeed.
	OutcomeDropped Outcome = "dropped"
)

// Options configures reconciliation behavior.
type Options struct {
	CaptureHeaders  bool
	ClickDedupScope ClickDedupScope
}

// Processor parses queue messages and reconciles them against the store.
type Processor struct {
	store repository.Store
	log   *logging.Logger
	opts  Options
}

// New creates a Processor.
func New(store repository.Store, log *logging.Logger, opts Options) *Processor {
	if opts.ClickDedupScope == "" {
		opts.ClickDedupScope = ClickDedupRecord
	}
	return &Processor{store: store, log: log, opts: opts}
}

// ProcessMessage runs one raw queue message body through the pipeline.
//
// A nil error means the message is finished with and must be deleted from
// the queue, whether it was applied or dropped. A non-nil error means the
// store failed and the message should be left for queue-driven retry.
func (p *Processor) ProcessMessage(ctx context.Context, body string) (Outcome, error) {
	evt, err := parser.Parse(body)
	if err != nil {
		kind := parser.KindOf(err)
		metrics.ParseErrors.WithLabelValues(string(kind)).Inc()
		if errors.Is(err, parser.ErrControlMessage) {
			p.log.DebugContext(ctx, "dropping control message", "error", err)
		} else {
			p.log.WarnContext(ctx, "dropping unparseable message", "error", err)
		}
		return OutcomeDropped, nil
	}

	eventType, err := models.ParseEventType(evt.EventType)
	if err != nil {
		metrics.UnknownEventTypes.Inc()
		p.log.WarnContext(ctx, "dropping event with unknown type",
			"event_type", evt.EventType,
			"provider_message_id", evt.Mail.MessageID)
		return OutcomeDropped, nil
	}

	if err := p.Apply(ctx, eventType, evt); err != nil {
		metrics.PersistenceErrors.Inc()
		return "", err
	}

	metrics.EventsApplied.WithLabelValues(string(eventType)).Inc()
	return OutcomeApplied, nil
}

// Apply reconciles one validated event of a known type into the store.
func (p *Processor) Apply(ctx context.Context, eventType models.EventType, evt *parser.Event) error {
	record, err := p.resolveRecord(ctx, eventType, evt)
	if err != nil {
		return err
	}

	p.backfillHeaders(record, evt)

	switch eventType {
	case models.EventSend:
		// Idempotent no-op on an existing record; creation already
		// happened in resolveRecord when the record was absent.
	case models.EventDelivery:
		err = p.applyDelivery(ctx, record, evt)
	case models.EventBounce:
		err = p.applyBounce(ctx, record, evt)
	case models.EventComplaint:
		err = p.applyComplaint(ctx, record, evt)
	case models.EventOpen:
		err = p.applyOpen(ctx, record, evt)
	case models.EventClick:
		err = p.applyClick(ctx, record, evt)
	case models.EventReject:
		err = p.applyReject(ctx, record, evt)
	case models.EventDeliveryDelay:
		err = p.applyDeliveryDelay(ctx, record, evt)
	case models.EventSubscription:
		err = p.applySubscription(ctx, record, evt)
	case models.EventRenderingFailure:
		err = p.applyRenderingFailure(ctx, record, evt)
	}
	if err != nil {
		return err
	}

	if err := p.store.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to persist send record %s: %w", record.ID, err)
	}
	return nil
}

// resolveRecord finds the send record the event refers to, first by the
// internal correlation id, then by the provider message id, synthesizing a
// placeholder when neither matches.
func (p *Processor) resolveRecord(ctx context.Context, eventType models.EventType, evt *parser.Event) (*models.SendRecord, error) {
	if corrID := evt.CorrelationID(); corrID != "" {
		record, err := p.store.FindByID(ctx, corrID)
		if err == nil {
			// Late-bind the provider message id assigned after send.
			if record.ProviderMessageID == "" {
				record.ProviderMessageID = evt.Mail.MessageID
			}
			return record, nil
		}
		if !errors.Is(err, repository.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up record by correlation id: %w", err)
		}
	}

	record, err := p.store.FindByProviderID(ctx, evt.Mail.MessageID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up record by provider id: %w", err)
	}

	return p.synthesizeRecord(ctx, eventType, evt)
}

func (p *Processor) synthesizeRecord(ctx context.Context, eventType models.EventType, evt *parser.Event) (*models.SendRecord, error) {
	now := time.Now().UTC()
	sentAt := evt.Mail.Timestamp
	if sentAt.IsZero() {
		sentAt = now
	}

	record := &models.SendRecord{
		ID:                uuid.New().String(),
		ProviderMessageID: evt.Mail.MessageID,
		Sender:            evt.Mail.Source,
		Subject:           evt.Subject(),
		Status:            initialStatusFor(eventType),
		SentAt:            sentAt,
		Provider:          "ses",
		Synthesized:       true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if len(evt.Mail.Destination) > 0 {
		record.Recipient = evt.Mail.Destination[0]
	}

	err := p.store.Create(ctx, record)
	if err == nil {
		metrics.PlaceholdersCreated.Inc()
		p.log.InfoContext(ctx, "synthesized placeholder record",
			"record_id", record.ID,
			"provider_message_id", record.ProviderMessageID,
			"status", record.Status)
		return record, nil
	}

	// A concurrent task may have synthesized the same record between the
	// lookup and the insert; fall back to it.
	if errors.Is(err, repository.ErrDuplicateProviderID) {
		return p.store.FindByProviderID(ctx, evt.Mail.MessageID)
	}
	return nil, fmt.Errorf("failed to synthesize placeholder record: %w", err)
}

// initialStatusFor picks the status a placeholder starts with, implied by
// the event that forced its creation.
func initialStatusFor(eventType models.EventType) models.Status {
	switch eventType {
	case models.EventDelivery:
		return models.StatusDelivered
	case models.EventBounce:
		return models.StatusBounced
	case models.EventComplaint:
		return models.StatusComplaint
	case models.EventOpen:
		return models.StatusOpened
	case models.EventClick:
		return models.StatusClicked
	case models.EventReject:
		return models.StatusRejected
	case models.EventDeliveryDelay:
		return models.StatusDelayed
	case models.EventRenderingFailure:
		return models.StatusFailed
	default:
		return models.StatusSent
	}
}

// backfillHeaders merges mail headers into the record once. Headers that
// are already populated are never overwritten by later events.
func (p *Processor) backfillHeaders(record *models.SendRecord, evt *parser.Event) {
	if !p.opts.CaptureHeaders || len(record.Headers) > 0 {
		return
	}
	if headers := evt.HeaderMap(); len(headers) > 0 {
		record.Headers = headers
	}
}

func (p *Processor) applyDelivery(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	record.Status = models.StatusDelivered
	occurredAt := evt.OccurredAt()
	record.DeliveredAt = &occurredAt

	return p.recordEvent(ctx, record, evt, models.EventDelivery, func(e *models.DeliveryEvent) {})
}

func (p *Processor) applyBounce(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	bounceType := ""
	if evt.Bounce != nil {
		bounceType = evt.Bounce.BounceType
	}

	switch bounceType {
	case "Permanent":
		record.Status = models.StatusHardBounced
	case "Transient", "Temporary":
		record.Status = models.StatusSoftBounced
	default:
		record.Status = models.StatusBounced
	}
	record.ErrorMessage = bounceDetail(evt.Bounce)
	record.RetryCount++

	// Bounces repeat meaningfully; every occurrence is kept.
	return p.recordEvent(ctx, record, evt, models.EventBounce, func(e *models.DeliveryEvent) {
		e.BounceType = bounceType
	})
}

// bounceDetail formats the per-recipient bounce diagnostics into the
// record's error message.
func bounceDetail(b *parser.Bounce) string {
	if b == nil {
		return "bounce"
	}
	if len(b.BouncedRecipients) == 0 {
		return fmt.Sprintf("%s bounce (%s)", b.BounceType, b.BounceSubType)
	}
	parts := make([]string, 0, len(b.BouncedRecipients))
	for _, r := range b.BouncedRecipients {
		parts = append(parts, fmt.Sprintf("%s bounce (%s): %s - %s - %s",
			b.BounceType, b.BounceSubType, r.EmailAddress, r.Status, r.DiagnosticCode))
	}
	return strings.Join(parts, "; ")
}

func (p *Processor) applyComplaint(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	complaintType := ""
	userAgent := ""
	if evt.Complaint != nil {
		complaintType = evt.Complaint.ComplaintFeedbackType
		userAgent = evt.Complaint.UserAgent
	}

	record.Status = models.StatusComplaint
	record.ErrorMessage = complaintType

	return p.recordEvent(ctx, record, evt, models.EventComplaint, func(e *models.DeliveryEvent) {
		e.ComplaintType = complaintType
		e.UserAgent = userAgent
	})
}

func (p *Processor) applyOpen(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	// Click outranks open; a late open never downgrades a clicked record.
	if record.Status != models.StatusClicked {
		record.Status = models.StatusOpened
	}

	return p.recordEvent(ctx, record, evt, models.EventOpen, func(e *models.DeliveryEvent) {
		if evt.Open != nil {
			e.IPAddress = evt.Open.IPAddress
			e.UserAgent = evt.Open.UserAgent
		}
	})
}

func (p *Processor) applyClick(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	record.Status = models.StatusClicked

	link := ""
	if evt.Click != nil {
		link = evt.Click.Link
	}

	decorate := func(e *models.DeliveryEvent) {
		if evt.Click != nil {
			e.LinkURL = evt.Click.Link
			e.IPAddress = evt.Click.IPAddress
			e.UserAgent = evt.Click.UserAgent
		}
	}

	// Per-link scope narrows the dedup key beyond the per-type rule.
	if p.opts.ClickDedupScope == ClickDedupLink {
		exists, err := p.store.ClickEventExists(ctx, record.ID, link)
		if err != nil {
			return fmt.Errorf("failed to check for existing click event: %w", err)
		}
		if exists {
			metrics.EventsDeduplicated.WithLabelValues(string(models.EventClick)).Inc()
			return nil
		}
		return p.createEvent(ctx, record, evt, models.EventClick, decorate)
	}

	return p.recordEvent(ctx, record, evt, models.EventClick, decorate)
}

func (p *Processor) applyReject(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	record.Status = models.StatusRejected
	if evt.Reject != nil {
		record.ErrorMessage = evt.Reject.Reason
	}

	return p.recordEvent(ctx, record, evt, models.EventReject, func(e *models.DeliveryEvent) {})
}

func (p *Processor) applyDeliveryDelay(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	// Never regress a more-final status to delayed.
	if !record.Status.OutranksDelay() {
		record.Status = models.StatusDelayed
	}

	return p.recordEvent(ctx, record, evt, models.EventDeliveryDelay, func(e *models.DeliveryEvent) {})
}

func (p *Processor) applySubscription(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	// Event recorded only; subscription changes carry no delivery status.
	return p.recordEvent(ctx, record, evt, models.EventSubscription, func(e *models.DeliveryEvent) {})
}

func (p *Processor) applyRenderingFailure(ctx context.Context, record *models.SendRecord, evt *parser.Event) error {
	record.Status = models.StatusFailed
	if evt.RenderingFailure != nil {
		record.ErrorMessage = fmt.Sprintf("template %s: %s",
			evt.RenderingFailure.TemplateName, evt.RenderingFailure.ErrorMessage)
		record.TemplateName = evt.RenderingFailure.TemplateName
	}

	return p.recordEvent(ctx, record, evt, models.EventRenderingFailure, func(e *models.DeliveryEvent) {})
}

// recordEvent stores the event, first consulting the type's dedup rule:
// deduped types keep at most one stored event per record. The existence
// check is point-in-time; a true race can still produce duplicates and
// that is accepted.
func (p *Processor) recordEvent(ctx context.Context, record *models.SendRecord, evt *parser.Event, eventType models.EventType, decorate func(*models.DeliveryEvent)) error {
	if eventType.Deduped() {
		exists, err := p.store.EventExists(ctx, record.ID, eventType)
		if err != nil {
			return fmt.Errorf("failed to check for existing %s event: %w", eventType, err)
		}
		if exists {
			metrics.EventsDeduplicated.WithLabelValues(string(eventType)).Inc()
			return nil
		}
	}
	return p.createEvent(ctx, record, evt, eventType, decorate)
}

func (p *Processor) createEvent(ctx context.Context, record *models.SendRecord, evt *parser.Event, eventType models.EventType, decorate func(*models.DeliveryEvent)) error {
	event := &models.DeliveryEvent{
		ID:         uuid.New().String(),
		RecordID:   record.ID,
		Type:       eventType,
		OccurredAt: evt.OccurredAt(),
		RawPayload: evt.Raw,
		CreatedAt:  time.Now().UTC(),
	}
	decorate(event)

	if err := p.store.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to create %s event: %w", eventType, err)
	}
	return nil
}
