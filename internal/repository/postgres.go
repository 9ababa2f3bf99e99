package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mdon/mailtrack/internal/models"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store. The initial ping is
// retried with exponential backoff so the service survives the database
// coming up after it.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, policy); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const recordColumns = `
	id, provider_message_id, recipient, sender, subject, status,
	sent_at, delivered_at, error_message, retry_count, headers,
	provider, size_bytes, attachment_count, campaign_id, template_name,
	synthesized, created_at, updated_at
`

func (s *PostgresStore) scanRecord(row pgx.Row) (*models.SendRecord, error) {
	r := &models.SendRecord{}
	var providerMessageID, subject, errorMessage, campaignID, templateName *string
	err := row.Scan(
		&r.ID, &providerMessageID, &r.Recipient, &r.Sender, &subject, &r.Status,
		&r.SentAt, &r.DeliveredAt, &errorMessage, &r.RetryCount, &r.Headers,
		&r.Provider, &r.SizeBytes, &r.AttachmentCount, &campaignID, &templateName,
		&r.Synthesized, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan send record: %w", err)
	}
	if providerMessageID != nil {
		r.ProviderMessageID = *providerMessageID
	}
	if subject != nil {
		r.Subject = *subject
	}
	if errorMessage != nil {
		r.ErrorMessage = *errorMessage
	}
	if campaignID != nil {
		r.CampaignID = *campaignID
	}
	if templateName != nil {
		r.TemplateName = *templateName
	}
	return r, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.SendRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM send_records WHERE id = $1`, recordColumns)
	return s.scanRecord(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) FindByProviderID(ctx context.Context, providerMessageID string) (*models.SendRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM send_records WHERE provider_message_id = $1`, recordColumns)
	return s.scanRecord(s.pool.QueryRow(ctx, query, providerMessageID))
}

func (s *PostgresStore) Create(ctx context.Context, record *models.SendRecord) error {
	query := `
		INSERT INTO send_records (
			id, provider_message_id, recipient, sender, subject, status,
			sent_at, delivered_at, error_message, retry_count, headers,
			provider, size_bytes, attachment_count, campaign_id, template_name,
			synthesized, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.pool.Exec(ctx, query,
		record.ID, nullable(record.ProviderMessageID), record.Recipient, record.Sender,
		nullable(record.Subject), record.Status, record.SentAt, record.DeliveredAt,
		nullable(record.ErrorMessage), record.RetryCount, record.Headers,
		record.Provider, record.SizeBytes, record.AttachmentCount,
		nullable(record.CampaignID), nullable(record.TemplateName),
		record.Synthesized, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation; the provider message id index is the
		// only unique constraint besides the primary key.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateProviderID, record.ProviderMessageID)
		}
		return fmt.Errorf("failed to create send record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.SendRecord) error {
	query := `
		UPDATE send_records SET
			provider_message_id = $2,
			status = $3,
			delivered_at = $4,
			error_message = $5,
			retry_count = $6,
			headers = $7,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		record.ID, nullable(record.ProviderMessageID), record.Status,
		record.DeliveredAt, nullable(record.ErrorMessage), record.RetryCount,
		record.Headers,
	)
	if err != nil {
		return fmt.Errorf("failed to update send record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.DeliveryEvent) error {
	query := `
		INSERT INTO delivery_events (
			id, record_id, type, occurred_at, raw_payload,
			bounce_type, complaint_type, link_url, ip_address, user_agent,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		event.ID, event.RecordID, event.Type, event.OccurredAt, event.RawPayload,
		nullable(event.BounceType), nullable(event.ComplaintType), nullable(event.LinkURL),
		nullable(event.IPAddress), nullable(event.UserAgent), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery event: %w", err)
	}
	return nil
}

func (s *PostgresStore) EventExists(ctx context.Context, recordID string, eventType models.EventType) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM delivery_events WHERE record_id = $1 AND type = $2)`
	if err := s.pool.QueryRow(ctx, query, recordID, eventType).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ClickEventExists(ctx context.Context, recordID, linkURL string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM delivery_events WHERE record_id = $1 AND type = $2 AND link_url = $3)`
	if err := s.pool.QueryRow(ctx, query, recordID, models.EventClick, linkURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check click event existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, recordID string) ([]*models.DeliveryEvent, error) {
	query := `
		SELECT id, record_id, type, occurred_at, raw_payload,
		       bounce_type, complaint_type, link_url, ip_address, user_agent,
		       created_at
		FROM delivery_events
		WHERE record_id = $1
		ORDER BY occurred_at ASC, created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery events: %w", err)
	}
	defer rows.Close()

	events := []*models.DeliveryEvent{}
	for rows.Next() {
		e := &models.DeliveryEvent{}
		var bounceType, complaintType, linkURL, ipAddress, userAgent *string
		if err := rows.Scan(
			&e.ID, &e.RecordID, &e.Type, &e.OccurredAt, &e.RawPayload,
			&bounceType, &complaintType, &linkURL, &ipAddress, &userAgent,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery event: %w", err)
		}
		if bounceType != nil {
			e.BounceType = *bounceType
		}
		if complaintType != nil {
			e.ComplaintType = *complaintType
		}
		if linkURL != nil {
			e.LinkURL = *linkURL
		}
		if ipAddress != nil {
			e.IPAddress = *ipAddress
		}
		if userAgent != nil {
			e.UserAgent = *userAgent
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery events: %w", err)
	}
	return events, nil
}

// nullable maps "" to NULL so partial unique indexes and omitempty JSON
// behave consistently.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
