// Package persistence stores activities and their lookup tables for
// PostgreSQL and SQLite behind the shared database.Connection.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/schedcache/internal/shared/domain"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/outbox"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrMissingKind      = errors.New("activity kind is required")
	ErrMissingCode      = errors.New("lookup code is required")
)

// participantBatch keeps IN lists under SQLite's bound-parameter limit.
const participantBatch = 500

const selectActivities = `
	SELECT id, kind, schedule_kind, schedule_id, start_ms, end_ms, status, description, multi_day
	FROM activities`

// ActivityRepository persists activities and notifies subscribed change
// listeners around every write: pre hooks inside the transaction, Saved and
// Removed after commit, RolledBack when the transaction aborts.
type ActivityRepository struct {
	conn   database.Connection
	uow    sharedApplication.UnitOfWork
	outbox outbox.Repository
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[domain.ActivityKind][]domain.ChangeListener
}

var (
	_ domain.ActivityReader = (*ActivityRepository)(nil)
	_ domain.NameResolver   = (*ActivityRepository)(nil)
	_ domain.ChangeNotifier = (*ActivityRepository)(nil)
)

// NewActivityRepository creates a new activity repository. Lookup changes
// are written to outboxRepo; a nil outboxRepo uses the outbox table on conn.
func NewActivityRepository(conn database.Connection, outboxRepo outbox.Repository, logger *slog.Logger) *ActivityRepository {
	if outboxRepo == nil {
		outboxRepo = outbox.NewSQLRepository(conn)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityRepository{
		conn:      conn,
		uow:       database.NewUnitOfWork(conn),
		outbox:    outboxRepo,
		logger:    logger,
		listeners: make(map[domain.ActivityKind][]domain.ChangeListener),
	}
}

// Subscribe registers listener for writes to activities of kind.
func (r *ActivityRepository) Subscribe(kind domain.ActivityKind, listener domain.ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[kind] = append(r.listeners[kind], listener)
}

func (r *ActivityRepository) listenersFor(kind domain.ActivityKind) []domain.ChangeListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ChangeListener(nil), r.listeners[kind]...)
}

func (r *ActivityRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *ActivityRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// FindInRange returns the activities on schedule whose interval intersects
// [from, to], ordered by start time. Open-ended activities count as
// instants.
func (r *ActivityRepository) FindInRange(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Activity, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(selectActivities+`
		WHERE schedule_kind = ? AND schedule_id = ?
		  AND start_ms <= ? AND COALESCE(end_ms, start_ms) >= ?
		ORDER BY start_ms, id`),
		schedule.Kind, schedule.ID, to.UnixMilli(), from.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}

	activities, err := scanActivities(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadParticipants(ctx, activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// FindByRef returns the persisted activity, or nil when it does not exist.
func (r *ActivityRepository) FindByRef(ctx context.Context, ref domain.EventRef) (*domain.Activity, error) {
	if !ref.IsPersisted() {
		return nil, nil
	}

	row := r.exec(ctx).QueryRow(ctx, r.q(selectActivities+` WHERE id = ? AND kind = ?`),
		ref.ID, string(ref.Kind))
	activity, err := scanActivity(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find activity %s: %w", ref, err)
	}

	if err := r.loadParticipants(ctx, []*domain.Activity{activity}); err != nil {
		return nil, err
	}
	return activity, nil
}

// Save inserts or updates activity. A new activity gets its ID assigned;
// the ID is reset if the transaction later rolls back.
func (r *ActivityRepository) Save(ctx context.Context, activity *domain.Activity) error {
	if activity.Ref.Kind == "" {
		return ErrMissingKind
	}
	if err := activity.Validate(); err != nil {
		return err
	}

	listeners := r.listenersFor(activity.Ref.Kind)
	return sharedApplication.WithUnitOfWork(ctx, r.uow, func(ctx context.Context) error {
		isNew := activity.IsNew()
		before := cloneActivity(activity)
		database.OnRollback(ctx, func(ctx context.Context) {
			if isNew {
				activity.Ref.ID = 0
			}
			for _, l := range listeners {
				l.RolledBack(ctx, before)
			}
		})

		for _, l := range listeners {
			if err := l.PreSave(ctx, activity); err != nil {
				return fmt.Errorf("pre-save %s: %w", activity.Ref, err)
			}
		}

		var err error
		if isNew {
			err = r.insert(ctx, activity)
		} else {
			err = r.update(ctx, activity)
		}
		if err != nil {
			return err
		}
		if err := r.writeParticipants(ctx, activity); err != nil {
			return err
		}

		// Only the last write to an activity in a transaction reaches the
		// listeners, so buckets move straight from the pre-transaction state
		// to the committed one.
		saved := cloneActivity(activity)
		database.OnCommitKeyed(ctx, commitKey{ref: saved.Ref}, func(ctx context.Context) {
			for _, l := range listeners {
				if err := l.Saved(ctx, saved); err != nil {
					r.logger.ErrorContext(ctx, "saved listener failed",
						"event_ref", saved.Ref.String(),
						"error", err,
					)
				}
			}
		})
		return nil
	})
}

// commitKey identifies the post-commit notification of one activity.
type commitKey struct {
	ref domain.EventRef
}

// Delete removes the activity behind ref.
func (r *ActivityRepository) Delete(ctx context.Context, ref domain.EventRef) error {
	listeners := r.listenersFor(ref.Kind)
	return sharedApplication.WithUnitOfWork(ctx, r.uow, func(ctx context.Context) error {
		activity, err := r.FindByRef(ctx, ref)
		if err != nil {
			return err
		}
		if activity == nil {
			return fmt.Errorf("%w: %s", ErrActivityNotFound, ref)
		}

		database.OnRollback(ctx, func(ctx context.Context) {
			for _, l := range listeners {
				l.RolledBack(ctx, activity)
			}
		})

		for _, l := range listeners {
			if err := l.PreRemove(ctx, activity); err != nil {
				return fmt.Errorf("pre-remove %s: %w", ref, err)
			}
		}

		exec := r.exec(ctx)
		if _, err := exec.Exec(ctx, r.q(`DELETE FROM activity_participants WHERE activity_id = ?`), ref.ID); err != nil {
			return fmt.Errorf("delete participants: %w", err)
		}
		if _, err := exec.Exec(ctx, r.q(`DELETE FROM activities WHERE id = ?`), ref.ID); err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}

		database.OnCommitKeyed(ctx, commitKey{ref: ref}, func(ctx context.Context) {
			for _, l := range listeners {
				if err := l.Removed(ctx, activity); err != nil {
					r.logger.ErrorContext(ctx, "removed listener failed",
						"event_ref", ref.String(),
						"error", err,
					)
				}
			}
		})
		return nil
	})
}

func (r *ActivityRepository) insert(ctx context.Context, a *domain.Activity) error {
	err := r.exec(ctx).QueryRow(ctx, r.q(`
		INSERT INTO activities (kind, schedule_kind, schedule_id, start_ms, end_ms, status, description, multi_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		string(a.Ref.Kind), a.Schedule.Kind, a.Schedule.ID,
		a.Start.UnixMilli(), nullableMillis(a.End), a.Status, a.Description, a.MultiDay,
	).Scan(&a.Ref.ID)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *ActivityRepository) update(ctx context.Context, a *domain.Activity) error {
	result, err := r.exec(ctx).Exec(ctx, r.q(`
		UPDATE activities
		SET schedule_kind = ?, schedule_id = ?, start_ms = ?, end_ms = ?,
		    status = ?, description = ?, multi_day = ?
		WHERE id = ? AND kind = ?`),
		a.Schedule.Kind, a.Schedule.ID, a.Start.UnixMilli(), nullableMillis(a.End),
		a.Status, a.Description, a.MultiDay,
		a.Ref.ID, string(a.Ref.Kind),
	)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, a.Ref)
	}
	return nil
}

// writeParticipants replaces the participant rows of a.
func (r *ActivityRepository) writeParticipants(ctx context.Context, a *domain.Activity) error {
	exec := r.exec(ctx)
	if _, err := exec.Exec(ctx, r.q(`DELETE FROM activity_participants WHERE activity_id = ?`), a.Ref.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}

	for i, link := range a.Participants {
		var partyKind, partyID any
		if !link.Party.IsZero() {
			partyKind, partyID = link.Party.Kind, link.Party.ID
		}
		if _, err := exec.Exec(ctx, r.q(`
			INSERT INTO activity_participants (activity_id, position, role, party_kind, party_id)
			VALUES (?, ?, ?, ?, ?)`),
			a.Ref.ID, i, link.Role, partyKind, partyID,
		); err != nil {
			return fmt.Errorf("insert participant %q: %w", link.Role, err)
		}
	}
	return nil
}

func (r *ActivityRepository) loadParticipants(ctx context.Context, activities []*domain.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Activity, len(activities))
	ids := make([]int64, 0, len(activities))
	for _, a := range activities {
		byID[a.Ref.ID] = a
		ids = append(ids, a.Ref.ID)
	}

	for start := 0; start < len(ids); start += participantBatch {
		end := min(start+participantBatch, len(ids))
		if err := r.loadParticipantBatch(ctx, byID, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ActivityRepository) loadParticipantBatch(ctx context.Context, byID map[int64]*domain.Activity, ids []int64) error {
	query, args := r.participantQuery(ids)
	rows, err := r.exec(ctx).Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			activityID int64
			link       domain.ParticipantLink
			partyKind  sql.NullString
			partyID    sql.NullInt64
		)
		if err := rows.Scan(&activityID, &link.Role, &partyKind, &partyID); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if partyKind.Valid && partyID.Valid {
			link.Party = domain.PartyRef{Kind: partyKind.String, ID: partyID.Int64}
		}
		if a := byID[activityID]; a != nil {
			a.Participants = append(a.Participants, link)
		}
	}
	return rows.Err()
}

func (r *ActivityRepository) participantQuery(ids []int64) (string, []any) {
	const base = `SELECT activity_id, role, party_kind, party_id FROM activity_participants WHERE activity_id `
	const order = ` ORDER BY activity_id, position`

	if r.conn.Driver() == database.DriverPostgres {
		return base + `= ANY($1)` + order, []any{pq.Array(ids)}
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return base + `IN (` + placeholders + `)` + order, args
}

// ParticipantName returns the display name of party, or "" when unknown.
func (r *ActivityRepository) ParticipantName(ctx context.Context, party domain.PartyRef) (string, error) {
	var name string
	err := r.exec(ctx).QueryRow(ctx, r.q(`SELECT display_name FROM parties WHERE kind = ? AND id = ?`),
		party.Kind, party.ID).Scan(&name)
	if database.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("participant name %s: %w", party, err)
	}
	return name, nil
}

// StatusName returns the display name of a status code, or "" when unknown.
func (r *ActivityRepository) StatusName(ctx context.Context, code string) (string, error) {
	var name string
	err := r.exec(ctx).QueryRow(ctx, r.q(`SELECT display_name FROM activity_statuses WHERE code = ?`),
		code).Scan(&name)
	if database.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("status name %q: %w", code, err)
	}
	return name, nil
}

// SaveParty sets the display name of a participant.
func (r *ActivityRepository) SaveParty(ctx context.Context, party domain.PartyRef, name string) error {
	if party.IsZero() {
		return ErrMissingCode
	}
	_, err := r.exec(ctx).Exec(ctx, r.q(`
		INSERT INTO parties (kind, id, display_name) VALUES (?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET display_name = excluded.display_name`),
		party.Kind, party.ID, name,
	)
	if err != nil {
		return fmt.Errorf("save party %s: %w", party, err)
	}
	return nil
}

// SaveStatus sets the display name of a status code. The change is
// announced through the outbox in the same transaction.
func (r *ActivityRepository) SaveStatus(ctx context.Context, code, name string) error {
	if code == "" {
		return ErrMissingCode
	}

	event := domain.NewStatusChanged(code, name)
	sharedApplication.ApplyEventMetadata([]sharedDomain.DomainEvent{&event}, sharedApplication.NewEventMetadata(ctx))
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}

	return sharedApplication.WithUnitOfWork(ctx, r.uow, func(ctx context.Context) error {
		if _, err := r.exec(ctx).Exec(ctx, r.q(`
			INSERT INTO activity_statuses (code, display_name) VALUES (?, ?)
			ON CONFLICT (code) DO UPDATE SET display_name = excluded.display_name`),
			code, name,
		); err != nil {
			return fmt.Errorf("save status %q: %w", code, err)
		}
		return r.outbox.Save(ctx, msg)
	})
}

func scanActivities(rows database.Rows) ([]*domain.Activity, error) {
	defer rows.Close()

	var activities []*domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func scanActivity(row database.Row) (*domain.Activity, error) {
	var (
		a       domain.Activity
		kind    string
		startMS int64
		endMS   sql.NullInt64
	)
	if err := row.Scan(&a.Ref.ID, &kind, &a.Schedule.Kind, &a.Schedule.ID,
		&startMS, &endMS, &a.Status, &a.Description, &a.MultiDay); err != nil {
		return nil, err
	}

	a.Ref.Kind = domain.ActivityKind(kind)
	a.Start = time.UnixMilli(startMS).UTC()
	if endMS.Valid {
		a.End = time.UnixMilli(endMS.Int64).UTC()
	}
	return &a, nil
}

func nullableMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func cloneActivity(a *domain.Activity) *domain.Activity {
	c := *a
	if a.Participants != nil {
		c.Participants = append([]domain.ParticipantLink(nil), a.Participants...)
	}
	return &c
}
