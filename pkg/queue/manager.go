// Package queue provides the lease-based multi-queue primitive that carries
// goals, tasks, patches, and reviews between pipeline stages.
//
// Delivery contract: at most one concurrent lease per record, at most one
// in-flight record per partition per queue, FIFO within a partition, and
// round-robin fairness across partitions so one chatty thread cannot starve
// the others. Acked records never reappear; nacked records are redelivered.
package queue

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known queue names used by the pipeline.
const (
	GoalQueue   = "goalQueue"
	TaskQueue   = "taskQueue"
	PatchQueue  = "patchQueue"
	ReviewQueue = "reviewQueue"
)

// Sentinel errors for queue operations.
var (
	// ErrNoRecords indicates no eligible records are available to pull.
	ErrNoRecords = errors.New("no records available")

	// ErrUnknownLease indicates the lease id matches no in-flight record.
	ErrUnknownLease = errors.New("unknown lease")
)

// Record is one enqueued item. Payload is opaque to the queue; partition
// keys serialize records belonging to one agent conversation.
type Record struct {
	ID           string
	PartitionKey string
	Payload      any
	EnqueuedAt   time.Time
	Attempts     int

	LeaseID        string
	LeaseExpiresAt time.Time
}

// EnqueueOptions carries optional enqueue parameters.
type EnqueueOptions struct {
	PartitionKey string
}

// Stats is a point-in-time snapshot of one queue, for health reporting.
type Stats struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
	InFlight int    `json:"inFlight"`
}

// Manager is a named family of lease-based queues. All operations are
// internally serialized; a background sweeper clears stale leases.
type Manager struct {
	mu           sync.Mutex
	queues       map[string]*state
	leaseTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// state holds one queue: records in arrival order plus a round-robin cursor
// over partitions. Records are never reordered; eligibility is computed at
// pull time.
type state struct {
	records []*Record
	// rr remembers the last partition served so the next pull starts after it.
	rr string
}

// NewManager creates a queue manager. leaseTimeout bounds how long a pulled
// record may stay in flight before it is redelivered; it must exceed the
// worst-case external call made while holding a lease.
func NewManager(leaseTimeout time.Duration) *Manager {
	return &Manager{
		queues:       make(map[string]*state),
		leaseTimeout: leaseTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the lease-expiry sweeper. Safe to call once; the manager
// works without it, but stale leases then only clear on explicit nack.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runSweeper()
}

// Stop terminates the sweeper and waits for it. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Enqueue appends a record to the named queue. O(1).
func (m *Manager) Enqueue(queue string, payload any, opts EnqueueOptions) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &Record{
		ID:           uuid.NewString(),
		PartitionKey: opts.PartitionKey,
		Payload:      payload,
		EnqueuedAt:   time.Now(),
	}
	m.queueState(queue).records = append(m.queueState(queue).records, rec)
	return rec
}

// Pull leases up to max records. Eligible records are the oldest record of
// each partition that has no record currently in flight, visited in
// round-robin order starting after the partition served last. Each returned
// record is stamped with a fresh lease.
//
// Records without a partition key partition by their own id, so they never
// block each other.
func (m *Manager) Pull(queue string, max int) ([]*Record, error) {
	if max <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.queueState(queue)
	now := time.Now()

	// Partition order is first-appearance order among pending records.
	leased := make(map[string]bool)
	heads := make(map[string]*Record)
	order := make([]string, 0)
	for _, rec := range st.records {
		part := rec.partition()
		if rec.LeaseID != "" {
			leased[part] = true
			continue
		}
		if _, seen := heads[part]; !seen {
			heads[part] = rec
			order = append(order, part)
		}
	}

	// Rotate so the scan starts after the last-served partition.
	start := 0
	for i, part := range order {
		if part == st.rr {
			start = i + 1
			break
		}
	}

	out := make([]*Record, 0, max)
	for i := 0; i < len(order) && len(out) < max; i++ {
		part := order[(start+i)%len(order)]
		if leased[part] {
			continue
		}
		rec := heads[part]
		rec.LeaseID = uuid.NewString()
		rec.LeaseExpiresAt = now.Add(m.leaseTimeout)
		rec.Attempts++
		st.rr = part
		out = append(out, rec)
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// Ack removes the record holding the given lease. Acked records never
// reappear.
func (m *Manager) Ack(queue, leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.queueState(queue)
	for i, rec := range st.records {
		if rec.LeaseID == leaseID {
			st.records = append(st.records[:i], st.records[i+1:]...)
			return nil
		}
	}
	return ErrUnknownLease
}

// Nack clears the lease so the record becomes eligible again, in FIFO order
// among its partition. Retry accounting is carried on the record.
func (m *Manager) Nack(queue, leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.queueState(queue).records {
		if rec.LeaseID == leaseID {
			rec.LeaseID = ""
			rec.LeaseExpiresAt = time.Time{}
			return nil
		}
	}
	return ErrUnknownLease
}

// Depth returns the number of records (pending + in flight) in a queue.
func (m *Manager) Depth(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queueState(queue).records)
}

// AllStats returns a snapshot of every known queue.
func (m *Manager) AllStats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stats, 0, len(m.queues))
	for name, st := range m.queues {
		s := Stats{Name: name, Depth: len(st.records)}
		for _, rec := range st.records {
			if rec.LeaseID != "" {
				s.InFlight++
			}
		}
		out = append(out, s)
	}
	return out
}

// expireLeases clears every lease past its deadline. Returns the count for
// logging.
func (m *Manager) expireLeases(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for _, st := range m.queues {
		for _, rec := range st.records {
			if rec.LeaseID != "" && now.After(rec.LeaseExpiresAt) {
				rec.LeaseID = ""
				rec.LeaseExpiresAt = time.Time{}
				expired++
			}
		}
	}
	return expired
}

func (m *Manager) runSweeper() {
	defer m.wg.Done()

	interval := m.leaseTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.expireLeases(time.Now()); n > 0 {
				slog.Warn("Expired stale queue leases", "count", n)
			}
		}
	}
}

// queueState returns the named queue, creating it on first use. Caller must
// hold m.mu.
func (m *Manager) queueState(name string) *state {
	st, ok := m.queues[name]
	if !ok {
		st = &state{}
		m.queues[name] = st
	}
	return st
}

func (r *Record) partition() string {
	if r.PartitionKey != "" {
		return r.PartitionKey
	}
	return r.ID
}
