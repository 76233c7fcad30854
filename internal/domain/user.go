package domain

import "time"

// User is the per-subscriber engagement record.
type User struct {
	ChatID       int64
	PromptIndex  int        // index of the most recently sent prompt
	LastPromptAt *time.Time // nil until the first prompt is delivered
	Answered     bool       // user replied after the current prompt
	ReminderSent bool       // reminder already issued for the current prompt
	CreatedAt    time.Time  // UTC

	// BadTimestamp holds the raw stored prompt timestamp when it could not be parsed.
	BadTimestamp string
}

// Prompted reports whether a prompt was ever delivered to the user.
// A corrupt timestamp still counts: something was stored by a dispatch.
func (u *User) Prompted() bool {
	return u.LastPromptAt != nil || u.BadTimestamp != ""
}

// Corrupt reports whether the stored prompt timestamp is unreadable.
func (u *User) Corrupt() bool {
	return u.BadTimestamp != ""
}
