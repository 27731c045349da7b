package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// Repository defines the interface for outbox persistence.
type Repository interface {
	// Save stores a new outbox message. Inside a unit of work the message
	// commits or rolls back with it.
	Save(ctx context.Context, msg *Message) error

	// GetUnpublished retrieves messages due for publishing, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	// MarkPublished marks a message as successfully published.
	MarkPublished(ctx context.Context, id int64) error

	// MarkFailed records a publish failure and schedules the next attempt.
	MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error

	// MarkDead gives up on a message.
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLRepository implements Repository over a database.Connection for both
// PostgreSQL and SQLite.
type SQLRepository struct {
	conn database.Connection
	now  func() time.Time
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a new outbox repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn, now: time.Now}
}

func (r *SQLRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save stores a new outbox message.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	var metadata any
	if len(msg.Metadata) > 0 {
		metadata = string(msg.Metadata)
	}

	err := r.exec(ctx).QueryRow(ctx, r.q(`
		INSERT INTO outbox (event_id, aggregate_type, aggregate_id, routing_key, payload, metadata, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID,
		msg.RoutingKey,
		string(msg.Body),
		metadata,
		msg.CreatedAt.UnixMilli(),
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// GetUnpublished retrieves messages due for publishing, oldest first.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(`
		SELECT id, event_id, aggregate_type, aggregate_id, routing_key, payload, metadata,
		       created_ms, next_retry_ms, retry_count, last_error
		FROM outbox
		WHERE published_ms IS NULL AND dead_ms IS NULL
		  AND (next_retry_ms IS NULL OR next_retry_ms <= ?)
		ORDER BY created_ms, id
		LIMIT ?`),
		r.now().UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg       Message
			eventID   string
			body      string
			metadata  sql.NullString
			createdMS int64
			retryMS   sql.NullInt64
			lastError sql.NullString
		)
		if err := rows.Scan(&msg.ID, &eventID, &msg.AggregateType, &msg.AggregateID, &msg.RoutingKey,
			&body, &metadata, &createdMS, &retryMS, &msg.RetryCount, &lastError); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}

		msg.EventID, _ = uuid.Parse(eventID)
		msg.Body = []byte(body)
		if metadata.Valid {
			msg.Metadata = []byte(metadata.String)
		}
		msg.CreatedAt = time.UnixMilli(createdMS).UTC()
		if retryMS.Valid {
			next := time.UnixMilli(retryMS.Int64).UTC()
			msg.NextRetryAt = &next
		}
		msg.LastError = lastError.String
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`UPDATE outbox SET published_ms = ? WHERE id = ?`),
		r.now().UnixMilli(), id)
	return err
}

// MarkFailed records a publish failure and schedules the next attempt.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_ms = ?
		WHERE id = ?`),
		reason, nextRetryAt.UnixMilli(), id)
	return err
}

// MarkDead gives up on a message.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, dead_ms = ?, dead_reason = ?
		WHERE id = ?`),
		reason, r.now().UnixMilli(), reason, id)
	return err
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan).UnixMilli()
	result, err := r.exec(ctx).Exec(ctx, r.q(`
		DELETE FROM outbox WHERE published_ms IS NOT NULL AND published_ms < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
