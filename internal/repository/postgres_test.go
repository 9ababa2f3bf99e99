package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mdon/mailtrack/internal/models"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations
func setupTestDatabase(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("mailtrack_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := NewPostgresStore(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return store, cleanup
}

// runMigrations applies the SQL migrations in order
func runMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrations := []string{
		"000001_create_send_records.up.sql",
		"000002_create_delivery_events.up.sql",
	}
	for _, name := range migrations {
		migrationPath := filepath.Join("..", "..", "migrations", name)
		migrationSQL, err := os.ReadFile(migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}

	return nil
}

func testRecord(id, providerMessageID string) *models.SendRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.SendRecord{
		ID:                id,
		ProviderMessageID: providerMessageID,
		Recipient:         "recipient@example.com",
		Sender:            "sender@example.com",
		Subject:           "Welcome aboard",
		Status:            models.StatusSent,
		SentAt:            now,
		Headers:           map[string]string{"X-Mailtrack-Id": id},
		Provider:          "ses",
		SizeBytes:         2048,
		AttachmentCount:   1,
		CampaignID:        "onboarding",
		TemplateName:      "welcome-v2",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ============================================================================
// Send Record Tests
// ============================================================================

func TestCreateAndFindRecord(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("11111111-1111-1111-1111-111111111111", "ses-msg-001")
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	retrieved, err := store.FindByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve record by id: %v", err)
	}

	if retrieved.ProviderMessageID != record.ProviderMessageID {
		t.Errorf("Expected provider message id %s, got %s", record.ProviderMessageID, retrieved.ProviderMessageID)
	}
	if retrieved.Recipient != record.Recipient {
		t.Errorf("Expected recipient %s, got %s", record.Recipient, retrieved.Recipient)
	}
	if retrieved.Subject != record.Subject {
		t.Errorf("Expected subject %s, got %s", record.Subject, retrieved.Subject)
	}
	if retrieved.Status != models.StatusSent {
		t.Errorf("Expected status %s, got %s", models.StatusSent, retrieved.Status)
	}
	if retrieved.Headers["X-Mailtrack-Id"] != record.ID {
		t.Errorf("Expected headers to round-trip, got %v", retrieved.Headers)
	}
	if retrieved.SizeBytes != 2048 {
		t.Errorf("Expected size 2048, got %d", retrieved.SizeBytes)
	}
	if retrieved.CampaignID != "onboarding" {
		t.Errorf("Expected campaign id onboarding, got %s", retrieved.CampaignID)
	}
	if retrieved.TemplateName != "welcome-v2" {
		t.Errorf("Expected template welcome-v2, got %s", retrieved.TemplateName)
	}
	if retrieved.Synthesized {
		t.Error("Expected synthesized to be false")
	}
	if !retrieved.SentAt.Equal(record.SentAt) {
		t.Errorf("Expected sent_at %v, got %v", record.SentAt, retrieved.SentAt)
	}

	byProvider, err := store.FindByProviderID(ctx, "ses-msg-001")
	if err != nil {
		t.Fatalf("Failed to retrieve record by provider id: %v", err)
	}
	if byProvider.ID != record.ID {
		t.Errorf("Expected id %s, got %s", record.ID, byProvider.ID)
	}
}

func TestCreateRecordNullableFields(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	// A synthesized placeholder carries only what the event had.
	now := time.Now().UTC()
	record := &models.SendRecord{
		ID:          "22222222-2222-2222-2222-222222222222",
		Recipient:   "bare@example.com",
		Sender:      "sender@example.com",
		Status:      models.StatusDelivered,
		SentAt:      now,
		Provider:    "ses",
		Synthesized: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	retrieved, err := store.FindByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve record: %v", err)
	}
	if retrieved.ProviderMessageID != "" {
		t.Errorf("Expected empty provider message id, got %s", retrieved.ProviderMessageID)
	}
	if retrieved.Subject != "" || retrieved.ErrorMessage != "" || retrieved.CampaignID != "" || retrieved.TemplateName != "" {
		t.Errorf("Expected nullable text fields to come back empty, got %+v", retrieved)
	}
	if !retrieved.Synthesized {
		t.Error("Expected synthesized to be true")
	}
}

func TestCreateDuplicateProviderID(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	first := testRecord("33333333-3333-3333-3333-333333333333", "ses-msg-dup")
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Failed to create first record: %v", err)
	}

	second := testRecord("44444444-4444-4444-4444-444444444444", "ses-msg-dup")
	err := store.Create(ctx, second)
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if !errors.Is(err, ErrDuplicateProviderID) {
		t.Errorf("Expected ErrDuplicateProviderID, got %v", err)
	}

	// The unique index is partial: records without a provider message id
	// never collide with each other.
	blankA := testRecord("55555555-5555-5555-5555-555555555555", "")
	blankB := testRecord("66666666-6666-6666-6666-666666666666", "")
	if err := store.Create(ctx, blankA); err != nil {
		t.Fatalf("Failed to create record without provider id: %v", err)
	}
	if err := store.Create(ctx, blankB); err != nil {
		t.Fatalf("Expected second record without provider id to insert, got %v", err)
	}
}

func TestFindRecordNotFound(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.FindByID(ctx, "99999999-9999-9999-9999-999999999999"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
	if _, err := store.FindByProviderID(ctx, "no-such-message"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateRecord(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("77777777-7777-7777-7777-777777777777", "ses-msg-upd")
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	deliveredAt := time.Now().UTC().Truncate(time.Millisecond)
	record.Status = models.StatusHardBounced
	record.DeliveredAt = &deliveredAt
	record.ErrorMessage = "Permanent bounce (General): recipient@example.com - 5.1.1 - smtp; 550"
	record.RetryCount = 2

	if err := store.Update(ctx, record); err != nil {
		t.Fatalf("Failed to update record: %v", err)
	}

	retrieved, err := store.FindByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve updated record: %v", err)
	}
	if retrieved.Status != models.StatusHardBounced {
		t.Errorf("Expected status %s, got %s", models.StatusHardBounced, retrieved.Status)
	}
	if retrieved.DeliveredAt == nil || !retrieved.DeliveredAt.Equal(deliveredAt) {
		t.Errorf("Expected delivered_at %v, got %v", deliveredAt, retrieved.DeliveredAt)
	}
	if retrieved.ErrorMessage != record.ErrorMessage {
		t.Errorf("Expected error message %q, got %q", record.ErrorMessage, retrieved.ErrorMessage)
	}
	if retrieved.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", retrieved.RetryCount)
	}
	if !retrieved.UpdatedAt.After(retrieved.CreatedAt) {
		t.Errorf("Expected updated_at to advance past created_at, got %v / %v", retrieved.UpdatedAt, retrieved.CreatedAt)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("88888888-8888-8888-8888-888888888888", "ses-msg-ghost")
	if err := store.Update(ctx, record); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

// ============================================================================
// Delivery Event Tests
// ============================================================================

func TestCreateEventAndExistence(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "ses-msg-evt")
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	exists, err := store.EventExists(ctx, record.ID, models.EventDelivery)
	if err != nil {
		t.Fatalf("Failed to check event existence: %v", err)
	}
	if exists {
		t.Error("Expected no delivery event before creation")
	}

	event := &models.DeliveryEvent{
		ID:         "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		RecordID:   record.ID,
		Type:       models.EventDelivery,
		OccurredAt: time.Now().UTC(),
		RawPayload: json.RawMessage(`{"eventType":"Delivery"}`),
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreateEvent(ctx, event); err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	exists, err = store.EventExists(ctx, record.ID, models.EventDelivery)
	if err != nil {
		t.Fatalf("Failed to check event existence: %v", err)
	}
	if !exists {
		t.Error("Expected delivery event to exist after creation")
	}

	exists, err = store.EventExists(ctx, record.ID, models.EventOpen)
	if err != nil {
		t.Fatalf("Failed to check event existence: %v", err)
	}
	if exists {
		t.Error("Expected no open event for the record")
	}
}

func TestClickEventExists(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("cccccccc-cccc-cccc-cccc-cccccccccccc", "ses-msg-click")
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	event := &models.DeliveryEvent{
		ID:         "dddddddd-dddd-dddd-dddd-dddddddddddd",
		RecordID:   record.ID,
		Type:       models.EventClick,
		OccurredAt: time.Now().UTC(),
		LinkURL:    "https://example.com/offer",
		IPAddress:  "203.0.113.9",
		UserAgent:  "Mozilla/5.0",
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreateEvent(ctx, event); err != nil {
		t.Fatalf("Failed to create click event: %v", err)
	}

	exists, err := store.ClickEventExists(ctx, record.ID, "https://example.com/offer")
	if err != nil {
		t.Fatalf("Failed to check click existence: %v", err)
	}
	if !exists {
		t.Error("Expected click event for the clicked link")
	}

	exists, err = store.ClickEventExists(ctx, record.ID, "https://example.com/other")
	if err != nil {
		t.Fatalf("Failed to check click existence: %v", err)
	}
	if exists {
		t.Error("Expected no click event for a different link")
	}
}

func TestListEventsOrdering(t *testing.T) {
	store, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee", "ses-msg-list")
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	// Inserted out of order; listing must come back by occurrence time.
	events := []*models.DeliveryEvent{
		{
			ID:         "10000000-0000-0000-0000-000000000001",
			RecordID:   record.ID,
			Type:       models.EventOpen,
			OccurredAt: base.Add(2 * time.Minute),
			CreatedAt:  base,
		},
		{
			ID:         "10000000-0000-0000-0000-000000000002",
			RecordID:   record.ID,
			Type:       models.EventDelivery,
			OccurredAt: base,
			CreatedAt:  base,
		},
		{
			ID:         "10000000-0000-0000-0000-000000000003",
			RecordID:   record.ID,
			Type:       models.EventBounce,
			OccurredAt: base.Add(1 * time.Minute),
			BounceType: "Transient",
			CreatedAt:  base,
		},
	}
	for _, e := range events {
		if err := store.CreateEvent(ctx, e); err != nil {
			t.Fatalf("Failed to create event %s: %v", e.Type, err)
		}
	}

	listed, err := store.ListEvents(ctx, record.ID)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(listed))
	}

	wantOrder := []models.EventType{models.EventDelivery, models.EventBounce, models.EventOpen}
	for i, want := range wantOrder {
		if listed[i].Type != want {
			t.Errorf("Expected event %d to be %s, got %s", i, want, listed[i].Type)
		}
	}
	if listed[1].BounceType != "Transient" {
		t.Errorf("Expected bounce type Transient, got %s", listed[1].BounceType)
	}
}
