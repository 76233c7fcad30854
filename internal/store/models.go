package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
)

// userColumns is the select list matching scanUser.
const userColumns = `chat_id, prompt_index, last_prompt_ts, answered, reminder_sent, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row. An unreadable last_prompt_ts does not fail
// the scan; it is kept on the record as BadTimestamp.
func scanUser(rs rowScanner, loc *time.Location) (domain.User, error) {
	var (
		u         domain.User
		stamp     sql.NullString
		answered  int
		reminded  int
		createdAt int64
	)
	if err := rs.Scan(&u.ChatID, &u.PromptIndex, &stamp, &answered, &reminded, &createdAt); err != nil {
		return domain.User{}, err
	}
	u.Answered = answered != 0
	u.ReminderSent = reminded != 0
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	if stamp.Valid {
		if t, err := domain.ParseStamp(stamp.String, loc); err == nil {
			u.LastPromptAt = &t
		} else {
			u.BadTimestamp = stamp.String
			if u.BadTimestamp == "" {
				u.BadTimestamp = `""`
			}
		}
	}
	return u, nil
}

// unavailable wraps a driver error so callers can match ErrUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
