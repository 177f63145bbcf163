package cost

import "sync"

// Ledger tracks spend and response counts for one session and decides when
// automatic responses must be throttled.
//
// Streaming estimates are kept apart from record totals: the character-length
// heuristic is never reconciled against the authoritative usage that arrives
// later in the same turn.
type Ledger struct {
	mu            sync.Mutex
	records       []Record
	recordTotal   float64
	streamTotal   float64
	limit         float64
	responseCount int
	maxResponses  int
	blocked       bool
}

// Snapshot is a point-in-time read of the ledger state.
type Snapshot struct {
	RunningTotal  float64 `json:"running_total"`
	Limit         float64 `json:"limit"`
	ResponseCount int     `json:"response_count"`
	MaxResponses  int     `json:"max_responses"`
	Blocked       bool    `json:"blocked"`
	RecordCount   int     `json:"record_count"`
}

func NewLedger(limit float64, maxResponses int) *Ledger {
	return &Ledger{limit: limit, maxResponses: maxResponses}
}

// Add appends an immutable record and flips blocked once the running total
// reaches the limit.
func (l *Ledger) Add(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, r)
	l.recordTotal += r.Total
	if l.runningTotalLocked() >= l.limit {
		l.blocked = true
	}
}

// AddStreamingEstimate accumulates a provisional cost from streamed deltas.
func (l *Ledger) AddStreamingEstimate(estimate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streamTotal += estimate
}

// AllowAutoResponse reports whether an automatic response may be issued,
// flipping blocked when a threshold has been crossed.
func (l *Ledger) AllowAutoResponse() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.blocked {
		return false
	}
	if l.runningTotalLocked() >= l.limit || l.responseCount >= l.maxResponses {
		l.blocked = true
		return false
	}
	return true
}

// CountResponse records that a response-request was issued.
func (l *Ledger) CountResponse() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.responseCount++
	if l.responseCount >= l.maxResponses {
		l.blocked = true
	}
}

func (l *Ledger) RunningTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runningTotalLocked()
}

func (l *Ledger) runningTotalLocked() float64 {
	return l.recordTotal + l.streamTotal
}

// RecordTotal is the sum of immutable records only; it must always equal
// Aggregate(Records()).Total.
func (l *Ledger) RecordTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordTotal
}

func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

func (l *Ledger) Blocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocked
}

// Unblock manually clears the throttle without touching totals.
func (l *Ledger) Unblock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocked = false
}

// Reset returns the ledger to its initial state for a new session.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	l.recordTotal = 0
	l.streamTotal = 0
	l.responseCount = 0
	l.blocked = false
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		RunningTotal:  l.runningTotalLocked(),
		Limit:         l.limit,
		ResponseCount: l.responseCount,
		MaxResponses:  l.maxResponses,
		Blocked:       l.blocked,
		RecordCount:   len(l.records),
	}
}
