package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/liveroom-server/internal/store"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = store.ErrNotFound

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_id, id DESC);

CREATE TABLE IF NOT EXISTS poll_responses (
	room_id       TEXT NOT NULL,
	poll_id       TEXT NOT NULL,
	respondent_id TEXT NOT NULL,
	selected_option TEXT NOT NULL,
	responded_at  DATETIME NOT NULL,
	PRIMARY KEY (room_id, poll_id, respondent_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	joined_at DATETIME NOT NULL,
	left_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_attendance_room ON attendance(room_id);

CREATE TABLE IF NOT EXISTS whiteboards (
	room_id    TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_by TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store, applies the schema and then runs a setup function.
// Useful for tests to seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ChatStore implementation ====

// SaveChatMessage persists a message and fills its ID.
func (s *SQLiteStore) SaveChatMessage(ctx context.Context, msg *store.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO chat_messages (room_id, sender_id, username, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.RoomID, msg.SenderID, msg.Username, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// ListChatMessages returns up to limit most recent messages of a room, oldest first.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, roomID string, limit int) ([]*store.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, room_id, sender_id, username, content, created_at
		FROM chat_messages
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.ChatMessage
	for rows.Next() {
		var msg store.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ==== PollStore implementation ====

// SavePollResponse stores a vote. A repeated vote by the same respondent is ignored.
func (s *SQLiteStore) SavePollResponse(ctx context.Context, resp *store.PollResponse) error {
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = time.Now().UTC()
	}
	query := `
		INSERT OR IGNORE INTO poll_responses (room_id, poll_id, respondent_id, selected_option, responded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, resp.RoomID, resp.PollID, resp.RespondentID, resp.Option, resp.RespondedAt); err != nil {
		return fmt.Errorf("insert poll response: %w", err)
	}
	return nil
}

// PollResults returns option counts for a poll.
func (s *SQLiteStore) PollResults(ctx context.Context, roomID, pollID string) (map[string]int, error) {
	query := `
		SELECT selected_option, COUNT(*)
		FROM poll_responses
		WHERE room_id = ? AND poll_id = ?
		GROUP BY selected_option
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, pollID)
	if err != nil {
		return nil, fmt.Errorf("query poll results: %w", err)
	}
	defer rows.Close()

	results := make(map[string]int)
	for rows.Next() {
		var (
			option string
			count  int
		)
		if err := rows.Scan(&option, &count); err != nil {
			return nil, fmt.Errorf("scan poll result: %w", err)
		}
		results[option] = count
	}
	return results, rows.Err()
}

// ListPollResponses returns every recorded vote of a poll, oldest first.
func (s *SQLiteStore) ListPollResponses(ctx context.Context, roomID, pollID string) ([]*store.PollResponse, error) {
	query := `
		SELECT room_id, poll_id, respondent_id, selected_option, responded_at
		FROM poll_responses
		WHERE room_id = ? AND poll_id = ?
		ORDER BY responded_at, rowid
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, pollID)
	if err != nil {
		return nil, fmt.Errorf("query poll responses: %w", err)
	}
	defer rows.Close()

	var out []*store.PollResponse
	for rows.Next() {
		var r store.PollResponse
		if err := rows.Scan(&r.RoomID, &r.PollID, &r.RespondentID, &r.Option, &r.RespondedAt); err != nil {
			return nil, fmt.Errorf("scan poll response: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ==== AttendanceStore implementation ====

// RecordJoin opens an attendance row and returns its ID.
func (s *SQLiteStore) RecordJoin(ctx context.Context, roomID, userID string, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance (room_id, user_id, joined_at) VALUES (?, ?, ?)`,
		roomID, userID, at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert attendance: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// RecordLeave closes an attendance row.
func (s *SQLiteStore) RecordLeave(ctx context.Context, attendanceID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET left_at = ? WHERE id = ? AND left_at IS NULL`,
		at.UTC(), attendanceID,
	)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("attendance %d: %w", attendanceID, ErrNotFound)
	}
	return nil
}

// ListAttendance lists attendance rows of a room.
func (s *SQLiteStore) ListAttendance(ctx context.Context, roomID string) ([]*store.Attendance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, joined_at, left_at FROM attendance WHERE room_id = ? ORDER BY id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []*store.Attendance
	for rows.Next() {
		var (
			a      store.Attendance
			leftAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.RoomID, &a.UserID, &a.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		if leftAt.Valid {
			t := leftAt.Time
			a.LeftAt = &t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ==== WhiteboardStore implementation ====

// SaveWhiteboard upserts the latest whiteboard content of a room.
func (s *SQLiteStore) SaveWhiteboard(ctx context.Context, snap *store.WhiteboardSnapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO whiteboards (room_id, content, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			content = excluded.content,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, snap.RoomID, string(snap.Content), snap.UpdatedBy, snap.UpdatedAt); err != nil {
		return fmt.Errorf("upsert whiteboard: %w", err)
	}
	return nil
}

// GetWhiteboard returns the latest whiteboard content of a room.
func (s *SQLiteStore) GetWhiteboard(ctx context.Context, roomID string) (*store.WhiteboardSnapshot, error) {
	var (
		snap    store.WhiteboardSnapshot
		content string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT room_id, content, updated_by, updated_at FROM whiteboards WHERE room_id = ?`,
		roomID,
	).Scan(&snap.RoomID, &content, &snap.UpdatedBy, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("whiteboard %s: %w", roomID, ErrNotFound)
		}
		return nil, fmt.Errorf("query whiteboard: %w", err)
	}
	snap.Content = []byte(content)
	return &snap, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
