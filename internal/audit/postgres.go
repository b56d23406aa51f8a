package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL. Events and the
// columns backing the actor/object indexes are written in a single
// transaction. Requires the audit_events table from the migrations
// directory.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Append stores an event in a single transaction.
func (r *PostgresRepository) Append(ctx context.Context, event *Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("encoding event details: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	insert := `
		INSERT INTO audit_events (
			event_id, chain_id, previous_hash, event_type, actor, action,
			object_hash, outcome, severity, created_at, details, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.ExecContext(ctx, insert,
		event.EventID, event.ChainID, event.PreviousHash, string(event.Type),
		event.Actor, event.Action, nullable(event.ObjectHash),
		string(event.Outcome), string(event.Severity), event.Timestamp,
		details, metadata)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing audit event: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const selectColumns = `
	event_id, chain_id, previous_hash, event_type, actor, action,
	COALESCE(object_hash, ''), outcome, severity, created_at, details, metadata
`

// LastEvent returns the most recently appended event of a chain.
func (r *PostgresRepository) LastEvent(ctx context.Context, chainID string) (*Event, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_events WHERE chain_id = $1
		ORDER BY seq DESC LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, chainID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

// EventsByChain returns a chain's events in append order.
func (r *PostgresRepository) EventsByChain(ctx context.Context, chainID string) ([]*Event, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_events WHERE chain_id = $1
		ORDER BY seq ASC
	`
	return r.queryEvents(ctx, query, chainID)
}

// EventsByActor returns events for an actor, newest first.
func (r *PostgresRepository) EventsByActor(ctx context.Context, actor string, limit int) ([]*Event, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_events WHERE actor = $1
		ORDER BY seq DESC
	`
	if limit > 0 {
		return r.queryEvents(ctx, query+" LIMIT $2", actor, limit)
	}
	return r.queryEvents(ctx, query, actor)
}

// EventsByObject returns events referencing an object hash, newest first.
func (r *PostgresRepository) EventsByObject(ctx context.Context, objectHash string, limit int) ([]*Event, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_events WHERE object_hash = $1
		ORDER BY seq DESC
	`
	if limit > 0 {
		return r.queryEvents(ctx, query+" LIMIT $2", objectHash, limit)
	}
	return r.queryEvents(ctx, query, objectHash)
}

// EventsByRange returns events with from <= created_at < to, in append order.
func (r *PostgresRepository) EventsByRange(ctx context.Context, from, to time.Time) ([]*Event, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_events WHERE created_at >= $1 AND created_at < $2
		ORDER BY seq ASC
	`
	return r.queryEvents(ctx, query, from, to)
}

// ChainIDs returns the identifiers of all chains, sorted ascending.
func (r *PostgresRepository) ChainIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT chain_id FROM audit_events ORDER BY chain_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying chain ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chain id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		event             Event
		eventType         string
		outcome, severity string
		details, metadata []byte
	)
	err := row.Scan(&event.EventID, &event.ChainID, &event.PreviousHash,
		&eventType, &event.Actor, &event.Action, &event.ObjectHash,
		&outcome, &severity, &event.Timestamp, &details, &metadata)
	if err != nil {
		return nil, err
	}

	event.Type = EventType(eventType)
	event.Outcome = Outcome(outcome)
	event.Severity = Severity(severity)
	event.Timestamp = event.Timestamp.UTC()
	if len(details) > 0 {
		if err := json.Unmarshal(details, &event.Details); err != nil {
			return nil, fmt.Errorf("decoding event details: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("decoding event metadata: %w", err)
		}
	}
	return &event, nil
}
