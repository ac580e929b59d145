package healing

import (
	"encoding/json"
	"fmt"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// DefaultLedgerCapacity bounds remediation history when configuration does
// not supply a capacity.
const DefaultLedgerCapacity = 500

// Ledger is the bounded, append-only record of executed remediations,
// most-recent-last. When full, the oldest entry is evicted first. It is the
// sole write path for remediation history. Not safe for concurrent use on
// its own; the orchestrator serialises access.
type Ledger struct {
	capacity int
	entries  []models.ActionLogEntry
}

// NewLedger creates an empty ledger holding up to capacity entries.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{capacity: capacity}
}

// Append adds an entry, evicting the oldest when the ledger is full.
func (l *Ledger) Append(entry models.ActionLogEntry) {
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.capacity-1]
	}
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the history, oldest first.
func (l *Ledger) Entries() []models.ActionLogEntry {
	return append([]models.ActionLogEntry(nil), l.entries...)
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Snapshot serialises the retained history for persistence.
func (l *Ledger) Snapshot() ([]byte, error) {
	return json.Marshal(l.entries)
}

// Restore replaces the history from a snapshot, trimming to capacity with
// the oldest entries dropped first.
func (l *Ledger) Restore(blob []byte) error {
	var entries []models.ActionLogEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return fmt.Errorf("decode ledger snapshot: %w", err)
	}
	if len(entries) > l.capacity {
		entries = entries[len(entries)-l.capacity:]
	}
	l.entries = entries
	return nil
}
