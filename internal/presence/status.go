package presence

import (
	"fmt"
	"time"
)

// Status is one presence signal for a user. Two independently written
// instances can exist per user: one in the ephemeral store (session
// bound, expires on disconnect) and one mirrored on the durable profile
// (refreshed on an interval, so it lags abrupt disconnects).
type Status struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
	Name     string    `json:"name,omitempty"`
}

// Resolved is the single display status produced from the two sources.
type Resolved struct {
	Online   bool
	LastSeen time.Time
	Name     string
}

// Resolve combines the two presence sources into one display status. The
// ephemeral instance, when present, wins outright: it reflects
// disconnects faster than the durable mirror, so a durable "online" must
// not override an ephemeral "offline". Each source applies the same two
// rules: online flag first, then last-seen.
func Resolve(ephemeral, durable *Status) Resolved {
	name := ""
	if durable != nil {
		name = durable.Name
	}
	if ephemeral != nil && ephemeral.Name != "" {
		name = ephemeral.Name
	}

	src := ephemeral
	if src == nil {
		src = durable
	}
	if src == nil {
		return Resolved{Name: name}
	}
	return Resolved{Online: src.Online, LastSeen: src.LastSeen, Name: name}
}

// Label renders the status for display: "Online", "Last seen …", or
// "Offline" when nothing is known.
func (r Resolved) Label(now time.Time) string {
	if r.Online {
		return "Online"
	}
	if !r.LastSeen.IsZero() {
		return "Last seen " + RelativeTime(r.LastSeen, now)
	}
	return "Offline"
}

// RelativeTime renders t relative to now, coarsening with distance.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < 2*time.Minute:
		return "1 minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 2*time.Hour:
		return "1 hour ago"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "yesterday"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return "on " + t.Format("Jan 2, 2006")
	}
}
