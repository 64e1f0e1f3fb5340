package failure

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindLogin           Kind = "login_error"
	KindSync            Kind = "sync_error"
	KindProtocol        Kind = "local_protocol_error"
	KindSessionUnpickle Kind = "session_unpickle_error"
	KindEncryption      Kind = "encryption_error"

	KindNetwork Kind = "network_error"
	KindTimeout Kind = "timeout_error"
	KindSend    Kind = "send_error"
	KindUnknown Kind = "unknown_error"
)

// criticalConsecutive is the consecutive failure count at which a critical
// kind terminates regardless of the retry budget.
const criticalConsecutive = 2

const NoFailuresReport = "No connection failures detected"

var criticalKinds = map[Kind]struct{}{
	KindLogin:           {},
	KindSync:            {},
	KindProtocol:        {},
	KindSessionUnpickle: {},
	KindEncryption:      {},
}

func (k Kind) Critical() bool {
	_, ok := criticalKinds[k]
	return ok
}

// Monitor tracks failure pressure on the chat transport and decides when the
// process should give up. It performs no I/O.
type Monitor struct {
	mu          sync.Mutex
	maxRetries  int
	consecutive int
	total       int
	kinds       map[Kind]int
	first       time.Time
	last        time.Time
	now         func() time.Time
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func NewMonitor(maxRetries int, opts ...Option) *Monitor {
	m := &Monitor{
		maxRetries: maxRetries,
		kinds:      make(map[Kind]int),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordSuccess clears the consecutive counter and returns its previous value.
func (m *Monitor) RecordSuccess() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.consecutive
	m.consecutive = 0
	return prev
}

// RecordFailure registers one failure and reports whether the process should
// terminate now.
func (m *Monitor) RecordFailure(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.consecutive == 0 {
		m.first = now
	}
	m.consecutive++
	m.total++
	m.last = now
	m.kinds[kind]++

	if kind.Critical() && m.consecutive >= criticalConsecutive {
		return true
	}
	return m.consecutive >= m.maxRetries
}

func (m *Monitor) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive
}

type KindCount struct {
	Kind  Kind
	Count int
}

// Stats is a point in time copy of the monitor state.
type Stats struct {
	MaxRetries  int
	Consecutive int
	Total       int
	First       time.Time
	Last        time.Time
	// Kinds is ordered by descending count, ties by kind name.
	Kinds []KindCount
}

func (s Stats) ProblemDuration() time.Duration {
	if s.First.IsZero() || s.Last.IsZero() {
		return 0
	}
	return s.Last.Sub(s.First)
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]KindCount, 0, len(m.kinds))
	for _, k := range slices.Sorted(maps.Keys(m.kinds)) {
		kinds = append(kinds, KindCount{Kind: k, Count: m.kinds[k]})
	}
	slices.SortStableFunc(kinds, func(a, b KindCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return Stats{
		MaxRetries:  m.maxRetries,
		Consecutive: m.consecutive,
		Total:       m.total,
		First:       m.first,
		Last:        m.last,
		Kinds:       kinds,
	}
}

const reportTimeLayout = "2006-01-02 15:04:05"

func (m *Monitor) StatusReport() string {
	s := m.Stats()
	if s.Total == 0 {
		return NoFailuresReport
	}

	lines := []string{
		"Connection Status Report:",
		fmt.Sprintf("- Total failures: %d", s.Total),
		fmt.Sprintf("- Consecutive failures: %d", s.Consecutive),
	}
	if !s.First.IsZero() {
		lines = append(lines, "- First failure: "+s.First.Format(reportTimeLayout))
	}
	if !s.Last.IsZero() {
		lines = append(lines, "- Latest failure: "+s.Last.Format(reportTimeLayout))
	}
	if !s.First.IsZero() && !s.Last.IsZero() {
		lines = append(lines, fmt.Sprintf("- Problem duration: %.1f seconds", s.ProblemDuration().Seconds()))
	}
	lines = append(lines, "- Failure types:")
	for _, kc := range s.Kinds {
		pct := float64(kc.Count) / float64(s.Total) * 100
		lines = append(lines, fmt.Sprintf("  - %s: %d (%.1f%%)", kc.Kind, kc.Count, pct))
	}
	return strings.Join(lines, "\n")
}
