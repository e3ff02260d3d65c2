package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/session"
)

// maxBatchSize caps readings inserted per statement. sqlite limits bound
// variables per statement; 9 columns per row keeps 100 rows well under it.
const maxBatchSize = 100

// SqliteStore is the sqlite-backed Store. Connections are opened lazily:
// a write connection with WAL journaling for saves, a separate read-only
// connection for queries.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the database at dbPath. The file and
// schema are created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath,
			"_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

// errNoDatabase marks a read against a database file that was never
// created. Queries treat it as an empty store rather than a failure.
var errNoDatabase = errors.New("database file does not exist")

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	// The read-only DSN cannot create the file; check before the lazy
	// open so a fresh install does not poison the connection.
	if _, err := os.Stat(s.dbPath); errors.Is(err, fs.ErrNotExist) {
		return nil, errNoDatabase
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) SaveSession(ctx context.Context, sess *session.Session) (sessionID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	statsJSON, err := json.Marshal(sess.Stats)
	if err != nil {
		return 0, fmt.Errorf("marshaling stats: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertSessionSQL,
		sess.Name,
		sess.StartTime.UTC(),
		sess.EndTime.UTC(),
		string(sess.ConnectionType),
		len(sess.Readings),
		string(statsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting session ID: %w", err)
	}

	for chunk := range slices.Chunk(sess.Readings, maxBatchSize) {
		if err = insertReadings(ctx, tx, sessionID, chunk); err != nil {
			return 0, fmt.Errorf("batch inserting readings: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return sessionID, nil
}

func insertReadings(ctx context.Context, tx *sql.Tx, sessionID int64, readings []meter.Reading) error {
	values := make([]any, 0, len(readings)*9)

	var sb strings.Builder
	sb.WriteString(insertReadingSQL)

	for i, r := range readings {
		var protocol sql.NullString
		if r.Protocol != nil {
			protocol.Valid = true
			protocol.String = r.Protocol.Name
		}

		values = append(values,
			sessionID,
			r.Timestamp.UTC(),
			r.Voltage,
			r.Current,
			r.Power,
			nullFloat(r.DP),
			nullFloat(r.DN),
			nullFloat(r.Temperature),
			protocol,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
	}

	_, err := tx.ExecContext(ctx, sb.String(), values...)
	return err
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (*session.Session, error) {
	db, err := s.getReadDB()
	if errors.Is(err, errNoDatabase) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return s.loadSession(ctx, db.QueryRowContext(ctx, selectSessionSQL, id))
}

func (s *SqliteStore) SessionByName(ctx context.Context, name string) (*session.Session, error) {
	db, err := s.getReadDB()
	if errors.Is(err, errNoDatabase) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return s.loadSession(ctx, db.QueryRowContext(ctx, selectSessionByNameSQL, name))
}

func (s *SqliteStore) loadSession(ctx context.Context, row *sql.Row) (*session.Session, error) {
	var (
		id   int64
		sess session.Session
		info SessionInfo
	)
	var statsJSON sql.NullString
	err := row.Scan(&id, &sess.Name, &sess.StartTime, &sess.EndTime, &info.ConnectionType, &info.SampleCount, &statsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.ConnectionType = info.ConnectionType
	if statsJSON.Valid {
		if err = json.Unmarshal([]byte(statsJSON.String), &sess.Stats); err != nil {
			return nil, fmt.Errorf("unmarshaling stats: %w", err)
		}
	}

	if sess.Readings, err = s.readings(ctx, id); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SqliteStore) readings(ctx context.Context, sessionID int64) (out []meter.Reading, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectReadingsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			r        meter.Reading
			dp       sql.NullFloat64
			dn       sql.NullFloat64
			temp     sql.NullFloat64
			protocol sql.NullString
		)
		if err = rows.Scan(&r.Timestamp, &r.Voltage, &r.Current, &r.Power, &dp, &dn, &temp, &protocol); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}

		if dp.Valid {
			r.DP = &dp.Float64
		}
		if dn.Valid {
			r.DN = &dn.Float64
		}
		if temp.Valid {
			r.Temperature = &temp.Float64
		}
		if protocol.Valid {
			r.Protocol = &meter.Protocol{Name: protocol.String}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []SessionInfo, err error) {
	db, err := s.getReadDB()
	if errors.Is(err, errNoDatabase) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			info       sql.NullString
			meta       SessionInfo
			start, end time.Time
		)
		if err = rows.Scan(&meta.ID, &meta.Name, &start, &end, &meta.ConnectionType, &meta.SampleCount, &info); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		meta.StartTime = start.Format(time.RFC3339)
		meta.EndTime = end.Format(time.RFC3339)
		sessions = append(sessions, meta)
	}
	return sessions, rows.Err()
}

func (s *SqliteStore) DeleteSession(ctx context.Context, id int64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, deleteSessionSQL, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}
		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
