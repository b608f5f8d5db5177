package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kairohq/backend/services/meeting/entity"
)

// postgres implements Storage on database/sql with the pq driver.
type postgres struct {
	db *sql.DB
}

// OpenPostgres connects to the database and ensures the meetings table
// exists. The canonical schema definition lives in postgres/schema; the DDL
// here mirrors it.
func OpenPostgres(ctx context.Context, databaseURL string) (Storage, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &postgres{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *postgres) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS meetings (
			id UUID PRIMARY KEY,
			external_event_id TEXT,
			title TEXT NOT NULL,
			meeting_url TEXT NOT NULL,
			platform TEXT NOT NULL,
			scheduled_start TIMESTAMPTZ NOT NULL,
			scheduled_end TIMESTAMPTZ,
			status TEXT NOT NULL,
			bot_excluded BOOLEAN NOT NULL DEFAULT FALSE,
			bot_id TEXT,
			bot_error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS meetings_external_event_id_key
			ON meetings (external_event_id) WHERE external_event_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS meetings_status_idx ON meetings (status);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate meetings table: %w", err)
	}
	return nil
}

const meetingColumns = `id, external_event_id, title, meeting_url, platform,
	scheduled_start, scheduled_end, status, bot_excluded, bot_id, bot_error,
	created_at, updated_at`

func (s *postgres) CreateMeeting(ctx context.Context, m *entity.Meeting) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := `
		INSERT INTO meetings (` + meetingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		nullString(m.ExternalEventID),
		m.Title,
		m.MeetingURL,
		string(m.Platform),
		m.ScheduledStart,
		nullTime(m.ScheduledEnd),
		string(m.Status),
		m.BotExcluded,
		nullString(m.BotID),
		nullString(m.BotError),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExternalEvent
		}
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

func (s *postgres) GetMeeting(ctx context.Context, id uuid.UUID) (*entity.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *postgres) GetMeetingByExternalEventID(ctx context.Context, eventID string) (*entity.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE external_event_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, eventID))
}

func (s *postgres) GetMeetingByBotID(ctx context.Context, botID string) (*entity.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE bot_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, botID))
}

func (s *postgres) UpdateMeeting(ctx context.Context, m *entity.Meeting) error {
	m.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE meetings
		SET external_event_id = $2, title = $3, meeting_url = $4, platform = $5,
			scheduled_start = $6, scheduled_end = $7, status = $8,
			bot_excluded = $9, bot_id = $10, bot_error = $11, updated_at = $12
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		m.ID,
		nullString(m.ExternalEventID),
		m.Title,
		m.MeetingURL,
		string(m.Platform),
		m.ScheduledStart,
		nullTime(m.ScheduledEnd),
		string(m.Status),
		m.BotExcluded,
		nullString(m.BotID),
		nullString(m.BotError),
		m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExternalEvent
		}
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgres) ListMeetings(ctx context.Context, filter ListFilter) ([]*entity.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE 1=1`
	args := []any{}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if !filter.StartAfter.IsZero() {
		args = append(args, filter.StartAfter)
		query += fmt.Sprintf(" AND scheduled_start >= $%d", len(args))
	}
	if !filter.StartBefore.IsZero() {
		args = append(args, filter.StartBefore)
		query += fmt.Sprintf(" AND scheduled_start <= $%d", len(args))
	}
	if filter.ExternalOnly {
		query += " AND external_event_id IS NOT NULL"
	}
	query += " ORDER BY scheduled_start, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	out := make([]*entity.Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meetings: %w", err)
	}
	return out, nil
}

func (s *postgres) scanOne(row *sql.Row) (*entity.Meeting, error) {
	m, err := scanMeeting(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func scanMeeting(scan func(...any) error) (*entity.Meeting, error) {
	var (
		m          entity.Meeting
		platform   string
		status     string
		externalID sql.NullString
		end        sql.NullTime
		botID      sql.NullString
		botError   sql.NullString
	)
	err := scan(
		&m.ID, &externalID, &m.Title, &m.MeetingURL, &platform,
		&m.ScheduledStart, &end, &status, &m.BotExcluded, &botID, &botError,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan meeting: %w", err)
	}

	m.ExternalEventID = externalID.String
	m.Platform = entity.Platform(platform)
	m.Status = entity.Status(status)
	if end.Valid {
		m.ScheduledEnd = end.Time
	}
	m.BotID = botID.String
	m.BotError = botError.String
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
