package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// AnomalyKind selects which metric an injected anomaly distorts.
type AnomalyKind string

const (
	AnomalyCPU          AnomalyKind = "cpu"
	AnomalyMemory       AnomalyKind = "memory"
	AnomalyResponseTime AnomalyKind = "response_time"
)

// AnomalyKinds lists the injectable anomaly kinds.
var AnomalyKinds = []AnomalyKind{AnomalyCPU, AnomalyMemory, AnomalyResponseTime}

// Valid reports whether k names a supported anomaly kind.
func (k AnomalyKind) Valid() bool {
	switch k {
	case AnomalyCPU, AnomalyMemory, AnomalyResponseTime:
		return true
	}
	return false
}

// Generator produces synthetic system metrics with realistic shapes:
// noisy baselines, occasional spikes, a slow memory leak that resets
// past 95%, and a sinusoidal network cycle.
type Generator struct {
	rng        *rand.Rand
	step       int
	memoryBase float64
	now        func() time.Time
}

// NewGenerator creates a generator seeded for reproducible sequences.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:        rand.New(rand.NewSource(seed)),
		memoryBase: 50,
		now:        time.Now,
	}
}

// Next produces one metric sample and advances the internal clock step.
func (g *Generator) Next() models.MetricSample {
	g.step++

	sample := models.MetricSample{
		Timestamp: g.now(),
		Values: map[string]float64{
			models.MetricCPUUsage:          g.cpu(),
			models.MetricMemoryUsage:       g.memory(),
			models.MetricDiskUsage:         g.disk(),
			models.MetricNetworkThroughput: g.network(),
			models.MetricResponseTime:      g.responseTime(),
			models.MetricActiveConnections: float64(50 + g.rng.Intn(151)),
			models.MetricErrorRate:         g.rng.Float64() * 2,
		},
	}
	return sample
}

// NextAnomalous produces a sample with the chosen metric forced into its
// critical range. Unknown kinds yield an unmodified sample.
func (g *Generator) NextAnomalous(kind AnomalyKind) models.MetricSample {
	sample := g.Next()
	switch kind {
	case AnomalyCPU:
		sample.Set(models.MetricCPUUsage, 95+g.rng.Float64()*5)
	case AnomalyMemory:
		sample.Set(models.MetricMemoryUsage, 90+g.rng.Float64()*10)
	case AnomalyResponseTime:
		sample.Set(models.MetricResponseTime, 4000+g.rng.Float64()*1000)
	}
	return sample
}

func (g *Generator) cpu() float64 {
	value := 40 + g.rng.NormFloat64()*5
	if g.rng.Float64() < 0.05 {
		value += 30
	}
	return clamp(value, 0, 100)
}

func (g *Generator) memory() float64 {
	trend := float64(g.step) * 0.01
	value := g.memoryBase + trend + g.rng.NormFloat64()*3
	if value > 95 {
		// Simulated restart drops usage back to the baseline.
		g.memoryBase = 50
		return 50
	}
	return clamp(value, 0, 100)
}

func (g *Generator) disk() float64 {
	trend := float64(g.step) * 0.005
	return clamp(60+trend+g.rng.NormFloat64()*2, 0, 100)
}

func (g *Generator) network() float64 {
	cycle := 50*math.Sin(float64(g.step)*0.1) + 50
	return math.Max(0, cycle+g.rng.NormFloat64()*10)
}

func (g *Generator) responseTime() float64 {
	value := 200 + g.rng.NormFloat64()*20
	if g.rng.Float64() < 0.03 {
		value += 1000
	}
	return math.Max(0, value)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
