package store

import (
	"context"
	"errors"
	"time"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
)

var (
	// ErrNotFound is returned by GetUser when there is no record.
	ErrNotFound = errors.New("user not found")
	// ErrUnavailable wraps any failure of the underlying database.
	ErrUnavailable = errors.New("store unavailable")
)

// Repo defines storage operations for subscriber engagement records.
// Callers serialize mutations per user; the repo only guarantees that each
// call is atomic on its own.
type Repo interface {
	EnsureUser(ctx context.Context, chatID int64) (created bool, err error)
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ApplyAdvance(ctx context.Context, chatID int64, index int, sentAt time.Time) error
	ApplyAcknowledge(ctx context.Context, chatID int64) error
	ApplyReminder(ctx context.Context, chatID int64) error
	RemoveUser(ctx context.Context, chatID int64) error
	Close() error
}
