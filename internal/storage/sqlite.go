package storage

import (
	"context"
	"database/sql"
	"fmt"

	"secret-santa-bot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS participants (
	user_id INTEGER PRIMARY KEY,
	name    TEXT NOT NULL,
	wish    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS assignments (
	giver_id    INTEGER PRIMARY KEY,
	receiver_id INTEGER NOT NULL
);`

// SQLite stores participants and the draw in the two-table schema
// (participants, assignments).
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveParticipant(ctx context.Context, userID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (user_id, name) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

func (s *SQLite) GetParticipant(ctx context.Context, userID int64) (*domain.Participant, error) {
	p := domain.Participant{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, wish FROM participants WHERE user_id = ?`, userID).Scan(&p.Name, &p.Wish)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (s *SQLite) GetAllParticipants(ctx context.Context) ([]*domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, name, wish FROM participants`)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.Name, &p.Wish); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

func (s *SQLite) DeleteParticipant(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return nil
}

func (s *SQLite) SaveWish(ctx context.Context, userID int64, wish string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE participants SET wish = ? WHERE user_id = ?`, wish, userID)
	if err != nil {
		return fmt.Errorf("failed to save wish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save wish: %w", err)
	}
	if n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *SQLite) GetAllAssignments(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT giver_id, receiver_id FROM assignments`)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[int64]int64)
	for rows.Next() {
		var giverID, receiverID int64
		if err := rows.Scan(&giverID, &receiverID); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments[giverID] = receiverID
	}
	return assignments, rows.Err()
}

func (s *SQLite) ReplaceAssignments(ctx context.Context, assignments []domain.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO assignments (giver_id, receiver_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, a.GiverID, a.ReceiverID); err != nil {
			return fmt.Errorf("failed to save assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignments: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteAllAssignments(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
