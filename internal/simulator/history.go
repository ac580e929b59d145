package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
	"github.com/neurocloudstack/neurocloud-heal/internal/store"
)

// DefaultHistoryCapacity bounds the persisted metric log.
const DefaultHistoryCapacity = 1000

// History keeps a bounded in-memory metric log mirrored to a Store so
// the API can serve recent samples across restarts.
type History struct {
	mu       sync.RWMutex
	samples  []models.MetricSample
	capacity int
	backing  store.Store
	key      string
}

// NewHistory creates a history with the given capacity, hydrated from
// the backing store when a previous log exists. A zero capacity means
// DefaultHistoryCapacity.
func NewHistory(ctx context.Context, backing store.Store, capacity int) (*History, error) {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	h := &History{
		capacity: capacity,
		backing:  backing,
		key:      store.KeyMetricHistory,
	}
	blob, err := backing.Load(ctx, h.key)
	if errors.Is(err, store.ErrNotFound) {
		return h, nil
	}
	if err != nil {
		return nil, err
	}
	var samples []models.MetricSample
	if err := json.Unmarshal(blob, &samples); err != nil {
		return nil, err
	}
	if len(samples) > capacity {
		samples = samples[len(samples)-capacity:]
	}
	h.samples = samples
	return h, nil
}

// Append records a sample, evicting the oldest past capacity, and
// persists the full log.
func (h *History) Append(ctx context.Context, sample models.MetricSample) error {
	h.mu.Lock()
	h.samples = append(h.samples, sample)
	if len(h.samples) > h.capacity {
		h.samples = h.samples[len(h.samples)-h.capacity:]
	}
	blob, err := json.Marshal(h.samples)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.backing.Save(ctx, h.key, blob)
}

// Recent returns up to n samples, most recent last. n <= 0 returns all.
func (h *History) Recent(n int) []models.MetricSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.samples) {
		n = len(h.samples)
	}
	out := make([]models.MetricSample, n)
	copy(out, h.samples[len(h.samples)-n:])
	return out
}

// Len reports the number of retained samples.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}
