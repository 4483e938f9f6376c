// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/varunkrunch/opennotebook/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notebooks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		archived INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		full_text TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		embedded_chunks INTEGER NOT NULL DEFAULT 0,
		insights TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sources_notebook_id ON sources(notebook_id, created_at);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		note_type TEXT NOT NULL DEFAULT 'human',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_notes_notebook_id ON notes(notebook_id, updated_at);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, seq);
	`
	_, err := db.Exec(schema)
	return err
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func affected(result sql.Result, what, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

// CreateNotebook inserts a notebook. A taken name yields ErrConflict.
func (s *SQLiteStorage) CreateNotebook(ctx context.Context, n *models.Notebook) error {
	now := s.now()
	n.Created = models.Timestamp{Time: now}
	n.Updated = models.Timestamp{Time: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notebooks (id, name, description, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Name, n.Description, n.Archived, now, now,
	)
	if isUnique(err) {
		return fmt.Errorf("notebook %q: %w", n.Name, ErrConflict)
	}
	return err
}

const notebookColumns = `id, name, description, archived, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotebook(row scanner) (*models.Notebook, error) {
	var n models.Notebook
	var created, updated time.Time
	if err := row.Scan(&n.ID, &n.Name, &n.Description, &n.Archived, &created, &updated); err != nil {
		return nil, err
	}
	n.Created = models.Timestamp{Time: created}
	n.Updated = models.Timestamp{Time: updated}
	return &n, nil
}

func (s *SQLiteStorage) getNotebook(ctx context.Context, where, arg string) (*models.Notebook, error) {
	n, err := scanNotebook(s.db.QueryRowContext(ctx,
		`SELECT `+notebookColumns+` FROM notebooks WHERE `+where+` = ?`, arg))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notebook %s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// GetNotebook returns a notebook by ID.
func (s *SQLiteStorage) GetNotebook(ctx context.Context, id string) (*models.Notebook, error) {
	return s.getNotebook(ctx, "id", id)
}

// GetNotebookByName returns a notebook by its unique name.
func (s *SQLiteStorage) GetNotebookByName(ctx context.Context, name string) (*models.Notebook, error) {
	return s.getNotebook(ctx, "name", name)
}

// ListNotebooks returns all notebooks, newest first.
func (s *SQLiteStorage) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notebookColumns+` FROM notebooks ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notebook
	for rows.Next() {
		n, err := scanNotebook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// UpdateNotebook stores name, description and archived of n.
func (s *SQLiteStorage) UpdateNotebook(ctx context.Context, n *models.Notebook) error {
	now := s.now()
	n.Updated = models.Timestamp{Time: now}
	result, err := s.db.ExecContext(ctx,
		`UPDATE notebooks SET name = ?, description = ?, archived = ?, updated_at = ? WHERE id = ?`,
		n.Name, n.Description, n.Archived, now, n.ID,
	)
	if isUnique(err) {
		return fmt.Errorf("notebook %q: %w", n.Name, ErrConflict)
	}
	if err != nil {
		return err
	}
	return affected(result, "notebook", n.ID)
}

// DeleteNotebook removes a notebook with its sources, notes and chat sessions.
func (s *SQLiteStorage) DeleteNotebook(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE notebook_id = ?)`,
		`DELETE FROM chat_sessions WHERE notebook_id = ?`,
		`DELETE FROM sources WHERE notebook_id = ?`,
		`DELETE FROM notes WHERE notebook_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := affected(result, "notebook", id); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateSource inserts a source.
func (s *SQLiteStorage) CreateSource(ctx context.Context, src *models.Source) error {
	metadataJSON, err := json.Marshal(src.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	insightsJSON, err := json.Marshal(src.Insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}

	now := s.now()
	src.Created = models.Timestamp{Time: now}
	src.Updated = models.Timestamp{Time: now}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sources (id, notebook_id, type, title, status, full_text, metadata, embedded_chunks, insights, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.NotebookID, string(src.Type), src.Title, string(src.Status), src.FullText,
		string(metadataJSON), src.EmbeddedChunks, string(insightsJSON), now, now,
	)
	return err
}

const sourceColumns = `id, notebook_id, type, title, status, full_text, metadata, embedded_chunks, insights, created_at, updated_at`

func scanSource(row scanner) (*models.Source, error) {
	var src models.Source
	var typ, status string
	var metadataJSON, insightsJSON sql.NullString
	var created, updated time.Time
	if err := row.Scan(&src.ID, &src.NotebookID, &typ, &src.Title, &status, &src.FullText,
		&metadataJSON, &src.EmbeddedChunks, &insightsJSON, &created, &updated); err != nil {
		return nil, err
	}
	src.Type = models.SourceType(typ)
	src.Status = models.SourceStatus(status)
	src.Created = models.Timestamp{Time: created}
	src.Updated = models.Timestamp{Time: updated}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &src.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if insightsJSON.Valid && insightsJSON.String != "" && insightsJSON.String != "null" {
		if err := json.Unmarshal([]byte(insightsJSON.String), &src.Insights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal insights: %w", err)
		}
	}
	return &src, nil
}

// GetSource returns a source by ID.
func (s *SQLiteStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ListSources returns the sources of a notebook, oldest first.
func (s *SQLiteStorage) ListSources(ctx context.Context, notebookID string) ([]models.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE notebook_id = ? ORDER BY created_at, id`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// UpdateSource stores the processing result of a source. The status may only
// move forward; anything else yields ErrInvalidTransition.
func (s *SQLiteStorage) UpdateSource(ctx context.Context, src *models.Source) error {
	current, err := s.GetSource(ctx, src.ID)
	if err != nil {
		return err
	}
	if !current.Status.CanAdvanceTo(src.Status) {
		return fmt.Errorf("source %s %s -> %s: %w", src.ID, current.Status, src.Status, ErrInvalidTransition)
	}
	metadataJSON, err := json.Marshal(src.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	insightsJSON, err := json.Marshal(src.Insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}

	now := s.now()
	src.Updated = models.Timestamp{Time: now}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sources SET title = ?, status = ?, full_text = ?, metadata = ?, embedded_chunks = ?, insights = ?, updated_at = ?
		 WHERE id = ?`,
		src.Title, string(src.Status), src.FullText, string(metadataJSON), src.EmbeddedChunks, string(insightsJSON), now, src.ID,
	)
	if err != nil {
		return err
	}
	return affected(result, "source", src.ID)
}

// DeleteSource removes a source by ID.
func (s *SQLiteStorage) DeleteSource(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result, "source", id)
}

// CreateNote inserts a note. An empty type is stored as human.
func (s *SQLiteStorage) CreateNote(ctx context.Context, n *models.Note) error {
	if n.Type == "" {
		n.Type = models.NoteHuman
	}
	now := s.now()
	n.Created = models.Timestamp{Time: now}
	n.Updated = models.Timestamp{Time: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, notebook_id, title, content, note_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.NotebookID, n.Title, n.Content, string(n.Type), now, now,
	)
	return err
}

const noteColumns = `id, notebook_id, title, content, note_type, created_at, updated_at`

func scanNote(row scanner) (*models.Note, error) {
	var n models.Note
	var typ string
	var created, updated time.Time
	if err := row.Scan(&n.ID, &n.NotebookID, &n.Title, &n.Content, &typ, &created, &updated); err != nil {
		return nil, err
	}
	n.Type = models.NoteType(typ)
	n.Created = models.Timestamp{Time: created}
	n.Updated = models.Timestamp{Time: updated}
	return &n, nil
}

// GetNote returns a note by ID.
func (s *SQLiteStorage) GetNote(ctx context.Context, id string) (*models.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// GetNoteByTitle returns the note with title, preferring an exact match over
// a case-insensitive one and the most recently updated note among equals.
func (s *SQLiteStorage) GetNoteByTitle(ctx context.Context, title string) (*models.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE lower(title) = lower(?)
		 ORDER BY title = ? DESC, updated_at DESC, id LIMIT 1`, title, title))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note %q: %w", title, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns the notes of a notebook, most recently updated first.
func (s *SQLiteStorage) ListNotes(ctx context.Context, notebookID string) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE notebook_id = ? ORDER BY updated_at DESC, id`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// UpdateNote stores title, content and type of n.
func (s *SQLiteStorage) UpdateNote(ctx context.Context, n *models.Note) error {
	now := s.now()
	n.Updated = models.Timestamp{Time: now}
	result, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, note_type = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, string(n.Type), now, n.ID,
	)
	if err != nil {
		return err
	}
	return affected(result, "note", n.ID)
}

// DeleteNote removes a note by ID.
func (s *SQLiteStorage) DeleteNote(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result, "note", id)
}

// CreateChatSession inserts an empty session.
func (s *SQLiteStorage) CreateChatSession(ctx context.Context, cs *models.ChatSession) error {
	now := s.now()
	cs.Created = models.Timestamp{Time: now}
	cs.Updated = models.Timestamp{Time: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, notebook_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		cs.ID, cs.NotebookID, cs.Title, now, now,
	)
	return err
}

func (s *SQLiteStorage) messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var role string
		var created time.Time
		if err := rows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.Timestamp = models.Timestamp{Time: created}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetChatSession returns a session with its messages in order.
func (s *SQLiteStorage) GetChatSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var cs models.ChatSession
	var created, updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT id, notebook_id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&cs.ID, &cs.NotebookID, &cs.Title, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	cs.Created = models.Timestamp{Time: created}
	cs.Updated = models.Timestamp{Time: updated}
	if cs.Messages, err = s.messages(ctx, id); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListChatSessions returns the sessions of a notebook with their messages,
// most recently updated first.
func (s *SQLiteStorage) ListChatSessions(ctx context.Context, notebookID string) ([]models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chat_sessions WHERE notebook_id = ? ORDER BY updated_at DESC, id`, notebookID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ChatSession, 0, len(ids))
	for _, id := range ids {
		cs, err := s.GetChatSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *cs)
	}
	return out, nil
}

// AppendMessages adds msgs to the end of a session in one transaction.
func (s *SQLiteStorage) AppendMessages(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM chat_messages WHERE session_id = ?`, sessionID,
	).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (id, session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now()
	for i, m := range msgs {
		ts := m.Timestamp.Time
		if ts.IsZero() {
			ts = now
		}
		if _, err := stmt.ExecContext(ctx, m.ID, sessionID, next+i, string(m.Role), m.Content, ts); err != nil {
			if isUnique(err) {
				return fmt.Errorf("message %s: %w", m.ID, ErrConflict)
			}
			return err
		}
	}
	result, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return err
	}
	if err := affected(result, "chat session", sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteChatSession removes a session and its messages.
func (s *SQLiteStorage) DeleteChatSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := affected(result, "chat session", id); err != nil {
		return err
	}
	return tx.Commit()
}

// CountNotebooks returns the total number of notebooks.
func (s *SQLiteStorage) CountNotebooks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notebooks`).Scan(&count)
	return count, err
}

// CountSources returns the total number of sources.
func (s *SQLiteStorage) CountSources(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
