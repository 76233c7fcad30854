package domain

import (
	"errors"
	"time"

	"github.com/ykvlv/daily-prompt-bot/internal/catalog"
)

// ReminderDelay is how long an unanswered prompt waits before a reminder.
const ReminderDelay = 24 * time.Hour

// ErrCorruptRecord is returned when a stored record cannot be evaluated.
var ErrCorruptRecord = errors.New("corrupt user record")

// ActionKind enumerates the outcomes of a decision.
type ActionKind int

const (
	NoAction ActionKind = iota
	SendPrompt
	SendReminder
	SetAnswered
	ReplyReceived
	ReplyNoPrompt
)

func (k ActionKind) String() string {
	switch k {
	case NoAction:
		return "none"
	case SendPrompt:
		return "send_prompt"
	case SendReminder:
		return "send_reminder"
	case SetAnswered:
		return "set_answered"
	case ReplyReceived:
		return "reply_received"
	case ReplyNoPrompt:
		return "reply_no_prompt"
	default:
		return "unknown"
	}
}

// Action is what a transition wants done for one user. Decisions never
// perform I/O; the caller sends the message and commits the state change.
type Action struct {
	Kind ActionKind

	// Index and Text are set for SendPrompt.
	Index int
	Text  string

	// MarkReminder is set when a SendReminder must be committed with
	// ApplyReminder once delivered. The daily re-nudge leaves it false.
	MarkReminder bool
}

// DecideAdvance is the daily transition.
//
// A user who never got a prompt starts at index 0. A user who answered moves
// to the next prompt, wrapping around the catalog. A user who did not answer
// is nudged again and stays on the same prompt.
func DecideAdvance(u *User, c catalog.Catalog, _ time.Time) Action {
	if !u.Prompted() {
		return Action{Kind: SendPrompt, Index: 0, Text: c.At(0)}
	}
	if u.Answered {
		next := c.Next(u.PromptIndex)
		return Action{Kind: SendPrompt, Index: next, Text: c.At(next)}
	}
	return Action{Kind: SendReminder}
}

// DecideReminder is the periodic scan transition: at most one reminder per
// prompt, only after delay has elapsed since the prompt was sent.
func DecideReminder(u *User, now time.Time, delay time.Duration) (Action, error) {
	if !u.Prompted() || u.Answered || u.ReminderSent {
		return Action{Kind: NoAction}, nil
	}
	if u.Corrupt() {
		return Action{Kind: NoAction}, ErrCorruptRecord
	}
	if now.Sub(*u.LastPromptAt) >= delay {
		return Action{Kind: SendReminder, MarkReminder: true}, nil
	}
	return Action{Kind: NoAction}, nil
}

// DecideAcknowledge is the answer intake transition. The reply is the same
// whether or not the answered flag actually flips.
func DecideAcknowledge(u *User) Action {
	if !u.Prompted() {
		return Action{Kind: ReplyNoPrompt}
	}
	if u.Answered {
		return Action{Kind: ReplyReceived}
	}
	return Action{Kind: SetAnswered}
}

// Advanced returns u as it looks after a delivered SendPrompt.
func Advanced(u User, index int, sentAt time.Time) User {
	t := sentAt.UTC()
	u.PromptIndex = index
	u.LastPromptAt = &t
	u.BadTimestamp = ""
	u.Answered = false
	u.ReminderSent = false
	return u
}
