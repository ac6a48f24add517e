package notify

import (
	"fmt"
	"time"

	"stockwatch/internal/domain/notification"
)

// Decision is the outcome of the delivery gate.
type Decision int

const (
	Deliver Decision = iota
	SuppressedInAppDisabled
	SuppressedDoNotDisturb
	SuppressedTypeDisabled
)

func (d Decision) String() string {
	switch d {
	case Deliver:
		return "deliver"
	case SuppressedInAppDisabled:
		return "in_app_disabled"
	case SuppressedDoNotDisturb:
		return "do_not_disturb"
	case SuppressedTypeDisabled:
		return "type_disabled"
	}
	return "unknown"
}

// Gate decides whether sound and desktop delivery happen. It never affects
// whether the notification is recorded.
func Gate(p notification.Preferences, t notification.Type, now time.Time) Decision {
	if !p.InApp {
		return SuppressedInAppDisabled
	}
	if p.DoNotDisturb.Enabled && InQuietWindow(p.DoNotDisturb, now) {
		return SuppressedDoNotDisturb
	}
	if !p.TypeEnabled(t) {
		return SuppressedTypeDisabled
	}
	return Deliver
}

// InQuietWindow compares the wall clock of now against [start, end]
// inclusive, at minute resolution. The window is same-day: a start after
// the end never matches, and neither does an unparseable bound.
func InQuietWindow(dnd notification.DoNotDisturb, now time.Time) bool {
	start, err := parseClock(dnd.StartTime)
	if err != nil {
		return false
	}
	end, err := parseClock(dnd.EndTime)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return start <= minute && minute <= end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// SoundFor maps a priority to the sound played for it.
func SoundFor(p notification.Priority) string {
	switch p {
	case notification.PriorityUrgent:
		return "urgent"
	case notification.PriorityHigh:
		return "alert"
	case notification.PriorityLow:
		return "soft"
	}
	return "notification"
}
