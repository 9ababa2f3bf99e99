// Package repository persists send records and their delivery events.
package repository

import (
	"context"
	"errors"

	"github.com/mdon/mailtrack/internal/models"
)

// Sentinel errors returned by Store implementations.
var (
	ErrRecordNotFound      = errors.New("send record not found")
	ErrDuplicateProviderID = errors.New("provider message id already exists")
)

// Store is the delivery record store consumed by the reconciler. The
// event-existence checks are point-in-time, not transactional guards;
// duplicate event rows are possible under true races and tolerated.
type Store interface {
	// FindByID looks a record up by its internal id.
	FindByID(ctx context.Context, id string) (*models.SendRecord, error)

	// FindByProviderID looks a record up by the provider-assigned message id.
	FindByProviderID(ctx context.Context, providerMessageID string) (*models.SendRecord, error)

	// Create inserts a new record.
	Create(ctx context.Context, record *models.SendRecord) error

	// Update persists the mutable fields of an existing record.
	Update(ctx context.Context, record *models.SendRecord) error

	// CreateEvent appends an immutable delivery event.
	CreateEvent(ctx context.Context, event *models.DeliveryEvent) error

	// EventExists reports whether an event of the given type is already
	// stored for the record.
	EventExists(ctx context.Context, recordID string, eventType models.EventType) (bool, error)

	// ClickEventExists reports whether a click event for the given link URL
	// is already stored for the record. Backs per-link click dedup.
	ClickEventExists(ctx context.Context, recordID, linkURL string) (bool, error)

	// ListEvents returns the event history of a record, oldest first.
	ListEvents(ctx context.Context, recordID string) ([]*models.DeliveryEvent, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close()
}
