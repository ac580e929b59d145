package healing

import (
	"sort"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// Stats aggregates the ledger into per-action-kind summaries, most frequent
// first, so the dashboard can show which remediations carry the system.
func (o *Orchestrator) Stats() []models.ActionStat {
	o.mu.Lock()
	entries := o.ledger.Entries()
	o.mu.Unlock()

	agg := make(map[models.ActionKind]*models.ActionStat)
	sums := make(map[models.ActionKind]float64)
	for _, entry := range entries {
		stat, ok := agg[entry.Action]
		if !ok {
			stat = &models.ActionStat{Action: entry.Action}
			agg[entry.Action] = stat
		}
		stat.Count++
		sums[entry.Action] += entry.TriggerValue
		if entry.Timestamp.After(stat.LastExecuted) {
			stat.LastExecuted = entry.Timestamp
		}
	}

	stats := make([]models.ActionStat, 0, len(agg))
	for kind, stat := range agg {
		stat.AvgTriggerValue = sums[kind] / float64(stat.Count)
		stats = append(stats, *stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Action < stats[j].Action
	})
	return stats
}
