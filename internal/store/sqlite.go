package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct {
	db  *sql.DB
	loc *time.Location // for zone-less timestamps written by older versions
}

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
// loc is used to read prompt timestamps that were stored without an offset.
func OpenSQLite(ctx context.Context, path string, loc *time.Location) (*SQLiteRepo, error) {
	if loc == nil {
		loc = time.UTC
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db, loc: loc}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// EnsureUser creates a default record for chatID unless one exists.
func (r *SQLiteRepo) EnsureUser(ctx context.Context, chatID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, created_at)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO NOTHING`,
		chatID, time.Now().UTC().Unix(),
	)
	if err != nil {
		return false, unavailable("ensure user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("ensure user", err)
	}
	return n > 0, nil
}

// GetUser returns the record for chatID or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE chat_id = ?`,
		chatID,
	)
	u, err := scanUser(row, r.loc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return &u, nil
}

// ListUsers returns a snapshot of every record ordered by chat_id.
func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY chat_id ASC`,
	)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows, r.loc)
		if err != nil {
			return nil, unavailable("scan user", err)
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list users", err)
	}
	return res, nil
}

// ApplyAdvance records a delivered prompt and resets the per-prompt flags.
func (r *SQLiteRepo) ApplyAdvance(ctx context.Context, chatID int64, index int, sentAt time.Time) error {
	if index < 0 {
		return fmt.Errorf("negative prompt index %d", index)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET prompt_index   = ?,
		    last_prompt_ts = ?,
		    answered       = 0,
		    reminder_sent  = 0
		WHERE chat_id = ?`,
		index, domain.FormatStamp(sentAt), chatID,
	)
	if err != nil {
		return unavailable("apply advance", err)
	}
	return nil
}

// ApplyAcknowledge marks the current prompt answered.
func (r *SQLiteRepo) ApplyAcknowledge(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET answered = 1
		WHERE chat_id = ? AND answered = 0`,
		chatID,
	)
	if err != nil {
		return unavailable("apply acknowledge", err)
	}
	return nil
}

// ApplyReminder marks a reminder as issued for the current prompt.
func (r *SQLiteRepo) ApplyReminder(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reminder_sent = 1
		WHERE chat_id = ?`,
		chatID,
	)
	if err != nil {
		return unavailable("apply reminder", err)
	}
	return nil
}

// RemoveUser deletes the record; deleting a missing user is not an error.
func (r *SQLiteRepo) RemoveUser(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE chat_id = ?`, chatID); err != nil {
		return unavailable("remove user", err)
	}
	return nil
}
