package quota

import (
	"context"
	"sync"
	"time"
)

// Limits are the per-owner call budgets for each fixed window. A zero
// budget means the window is not enforced.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Usage is the current attempt count per window for one owner.
type Usage struct {
	Minute int
	Hour   int
	Day    int
}

// Gate is the admission check consulted before every dispatch attempt.
// Allow is read-only; Record is called only after an attempt was actually
// sent to a platform, so gated attempts never consume budget. Counters are
// best effort under concurrency, not a billing ledger.
type Gate interface {
	Allow(ctx context.Context, ownerID int64) (bool, error)
	Record(ctx context.Context, ownerID int64) error
	Usage(ctx context.Context, ownerID int64) (Usage, error)
}

// Alert flags a window whose usage crossed the configured fraction of its
// budget. Evaluated on demand, off the dispatch path.
type Alert struct {
	Window   string  `json:"window"`
	Used     int     `json:"used"`
	Budget   int     `json:"budget"`
	Fraction float64 `json:"fraction"`
}

// EvaluateAlerts returns one alert per window at or above threshold.
func EvaluateAlerts(u Usage, limits Limits, threshold float64) []Alert {
	var alerts []Alert
	check := func(window string, used, budget int) {
		if budget <= 0 {
			return
		}
		fraction := float64(used) / float64(budget)
		if fraction >= threshold {
			alerts = append(alerts, Alert{Window: window, Used: used, Budget: budget, Fraction: fraction})
		}
	}
	check("minute", u.Minute, limits.PerMinute)
	check("hour", u.Hour, limits.PerHour)
	check("day", u.Day, limits.PerDay)
	return alerts
}

type window struct {
	start time.Time
	count int
}

type ownerCounters struct {
	minute window
	hour   window
	day    window
}

// MemoryGate keeps per-owner fixed-window counters in process memory.
// Suitable for single-instance deployments and tests; multi-instance
// deployments share counters through RedisGate instead.
type MemoryGate struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time
	owners map[int64]*ownerCounters
}

func NewMemoryGate(limits Limits) *MemoryGate {
	return &MemoryGate{
		limits: limits,
		now:    time.Now,
		owners: make(map[int64]*ownerCounters),
	}
}

// NewMemoryGateAt uses the given time source, for deterministic tests.
func NewMemoryGateAt(limits Limits, now func() time.Time) *MemoryGate {
	g := NewMemoryGate(limits)
	g.now = now
	return g
}

func (g *MemoryGate) Allow(ctx context.Context, ownerID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.counters(ownerID)
	if g.limits.PerMinute > 0 && c.minute.count >= g.limits.PerMinute {
		return false, nil
	}
	if g.limits.PerHour > 0 && c.hour.count >= g.limits.PerHour {
		return false, nil
	}
	if g.limits.PerDay > 0 && c.day.count >= g.limits.PerDay {
		return false, nil
	}
	return true, nil
}

func (g *MemoryGate) Record(ctx context.Context, ownerID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.counters(ownerID)
	c.minute.count++
	c.hour.count++
	c.day.count++
	return nil
}

func (g *MemoryGate) Usage(ctx context.Context, ownerID int64) (Usage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.counters(ownerID)
	return Usage{Minute: c.minute.count, Hour: c.hour.count, Day: c.day.count}, nil
}

// counters fetches the owner's windows, rolling over any that expired.
func (g *MemoryGate) counters(ownerID int64) *ownerCounters {
	c, ok := g.owners[ownerID]
	if !ok {
		c = &ownerCounters{}
		g.owners[ownerID] = c
	}

	now := g.now()
	roll(&c.minute, now.Truncate(time.Minute))
	roll(&c.hour, now.Truncate(time.Hour))
	roll(&c.day, now.Truncate(24*time.Hour))
	return c
}

func roll(w *window, start time.Time) {
	if !w.start.Equal(start) {
		w.start = start
		w.count = 0
	}
}
