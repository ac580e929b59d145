package healing

import (
	"time"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// DefaultCooldown is applied when configuration does not supply a duration.
const DefaultCooldown = 5 * time.Minute

// CooldownTable tracks when each action kind last fired. One duration is
// shared by every kind. Entries are overwritten, never removed, for the
// lifetime of the process. The table is not safe for concurrent use on its
// own; the orchestrator serialises access.
type CooldownTable struct {
	duration  time.Duration
	lastFired map[models.ActionKind]time.Time
}

// NewCooldownTable creates an empty table with the given cooldown duration.
func NewCooldownTable(duration time.Duration) *CooldownTable {
	if duration <= 0 {
		duration = DefaultCooldown
	}
	return &CooldownTable{
		duration:  duration,
		lastFired: make(map[models.ActionKind]time.Time),
	}
}

// MayFire reports whether kind is eligible at now: either it never fired,
// or strictly more than the cooldown duration has elapsed since it did.
func (t *CooldownTable) MayFire(kind models.ActionKind, now time.Time) bool {
	last, ok := t.lastFired[kind]
	if !ok {
		return true
	}
	return now.Sub(last) > t.duration
}

// Record unconditionally overwrites the last-fired timestamp for kind.
func (t *CooldownTable) Record(kind models.ActionKind, now time.Time) {
	t.lastFired[kind] = now
}

// LastFired returns the recorded timestamp for kind, if any.
func (t *CooldownTable) LastFired(kind models.ActionKind) (time.Time, bool) {
	last, ok := t.lastFired[kind]
	return last, ok
}

// Duration returns the shared cooldown duration.
func (t *CooldownTable) Duration() time.Duration {
	return t.duration
}
