package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyClock   = errors.New("empty time of day")
	ErrInvalidClock = errors.New("invalid time of day")
	ErrBadStamp     = errors.New("unparseable timestamp")
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// String returns HH:MM.
func (c Clock) String() string {
	return FormatMinutes(c.Hour*60 + c.Minute)
}

// CronSpec returns a five-field cron expression firing daily at c.
func (c Clock) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// ParseClock parses "HH:MM" (also "H:MM").
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Clock{}, ErrEmptyClock
	}
	mins, err := parseHHMM(s)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %v", ErrInvalidClock, err)
	}
	return Clock{Hour: mins / 60, Minute: mins % 60}, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.New("invalid minute")
	}
	return h*60 + m, nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// naive layouts carry no zone; they are read in the caller's location.
var naiveStampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatStamp renders t the way prompt timestamps are persisted.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseStamp reads a persisted prompt timestamp. RFC 3339 values keep their
// offset; zone-less ISO values are interpreted in loc.
func ParseStamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveStampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadStamp, s)
}

// LocalizeStamp formats t in the given location as "2006-01-02 15:04".
func LocalizeStamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
