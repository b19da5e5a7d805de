package collector

import (
	"sort"
	"sync"
	"time"
)

// Outcome classifies a recorded sample.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeRejected Outcome = "rejected"
)

// Sample is one latency/outcome observation. Samples are ephemeral: they
// live only inside the collector's rolling window.
type Sample struct {
	Action    string
	Latency   time.Duration
	Outcome   Outcome
	Timestamp time.Time
}

// Snapshot is the point-in-time aggregate for one action.
type Snapshot struct {
	P50       time.Duration `json:"p50"`
	P95       time.Duration `json:"p95"`
	P99       time.Duration `json:"p99"`
	Count     int           `json:"count"`
	ErrorRate float64       `json:"error_rate"`
}

// ring is a bounded window of the most recent samples for one action.
type ring struct {
	samples []Sample
	next    int
	full    bool
}

func (r *ring) add(s Sample) {
	r.samples[r.next] = s
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// Collector keeps a bounded rolling window of samples per action and
// computes exact sort-based percentiles over it. The window is small by
// construction, so exact computation stays cheap; no streaming
// approximation is needed.
type Collector struct {
	mu         sync.Mutex
	windowSize int
	windows    map[string]*ring
}

func New(windowSize int) *Collector {
	if windowSize <= 0 {
		windowSize = 1024
	}
	return &Collector{
		windowSize: windowSize,
		windows:    make(map[string]*ring),
	}
}

func (c *Collector) Record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[s.Action]
	if !ok {
		w = &ring{samples: make([]Sample, c.windowSize)}
		c.windows[s.Action] = w
	}
	w.add(s)
}

// Snapshot aggregates the current window for the action. An action with no
// samples yields a zero snapshot.
func (c *Collector) Snapshot(action string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[action]
	if !ok || w.len() == 0 {
		return Snapshot{}
	}

	n := w.len()
	latencies := make([]time.Duration, 0, n)
	failures := 0
	for i := 0; i < n; i++ {
		s := w.samples[i]
		latencies = append(latencies, s.Latency)
		if s.Outcome != OutcomeSuccess {
			failures++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	return Snapshot{
		P50:       percentile(latencies, 0.50),
		P95:       percentile(latencies, 0.95),
		P99:       percentile(latencies, 0.99),
		Count:     n,
		ErrorRate: float64(failures) / float64(n),
	}
}

// Actions lists every action with at least one recorded sample.
func (c *Collector) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.windows))
	for action := range c.windows {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// percentile uses the nearest-rank method over sorted values.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(q*float64(len(sorted))+0.999999) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
