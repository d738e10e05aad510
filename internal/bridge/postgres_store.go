package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

const (
	postgresTableName        = "issue_events"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec IssueRecord) error {
	if rec.IssueID <= 0 || strings.TrimSpace(rec.RootMessageID) == "" || strings.TrimSpace(rec.RoomID) == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"INSERT INTO %s (issue_id, matrix_event_id, matrix_room_id) VALUES ($1, $2, $3)",
		postgresQuoteIdentifier(s.tableName),
	)
	_, err := s.db.ExecContext(ctx, query, rec.IssueID, rec.RootMessageID, rec.RoomID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PostgresStore) FindByIssueID(ctx context.Context, issueID int64) (IssueRecord, error) {
	query := fmt.Sprintf(
		"SELECT issue_id, matrix_event_id, matrix_room_id, reaction_event_id FROM %s WHERE issue_id = $1",
		postgresQuoteIdentifier(s.tableName),
	)
	return s.findOne(ctx, query, issueID)
}

func (s *PostgresStore) FindByRootMessageID(ctx context.Context, messageID string) (IssueRecord, error) {
	query := fmt.Sprintf(
		"SELECT issue_id, matrix_event_id, matrix_room_id, reaction_event_id FROM %s WHERE matrix_event_id = $1",
		postgresQuoteIdentifier(s.tableName),
	)
	return s.findOne(ctx, query, messageID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (IssueRecord, error) {
	if err := s.ensureReady(); err != nil {
		return IssueRecord{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var rec IssueRecord
	var marker sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&rec.IssueID, &rec.RootMessageID, &rec.RoomID, &marker)
	if errors.Is(err, sql.ErrNoRows) {
		return IssueRecord{}, ErrNotFound
	}
	if err != nil {
		return IssueRecord{}, err
	}
	rec.StatusMarkerID = marker.String
	return rec, nil
}

func (s *PostgresStore) SetStatusMarker(ctx context.Context, issueID int64, markerID string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var value any
	if strings.TrimSpace(markerID) != "" {
		value = markerID
	}
	query := fmt.Sprintf(
		"UPDATE %s SET reaction_event_id = $1 WHERE issue_id = $2",
		postgresQuoteIdentifier(s.tableName),
	)
	result, err := s.db.ExecContext(ctx, query, value, issueID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]IssueRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT issue_id, matrix_event_id, matrix_room_id, reaction_event_id FROM %s ORDER BY issue_id ASC",
		postgresQuoteIdentifier(s.tableName),
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]IssueRecord, 0)
	for rows.Next() {
		var rec IssueRecord
		var marker sql.NullString
		if err := rows.Scan(&rec.IssueID, &rec.RootMessageID, &rec.RoomID, &marker); err != nil {
			return nil, err
		}
		rec.StatusMarkerID = marker.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				issue_id BIGINT PRIMARY KEY,
				matrix_event_id TEXT NOT NULL,
				matrix_room_id TEXT NOT NULL,
				reaction_event_id TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
