package app

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-match-service/internal/domain"
)

// PoolConfig tunes worker health tracking.
type PoolConfig struct {
	LivenessWindow time.Duration // missed-heartbeat window before a worker is marked DEAD
	MatchTTL       time.Duration // TTL for match records written during assignment
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = 15 * time.Second
	}
	if c.MatchTTL <= 0 {
		c.MatchTTL = time.Hour
	}
	return c
}

// WorkerRecord is the pool's bookkeeping for one worker.
type WorkerRecord struct {
	ID         string
	Status     domain.WorkerStatus
	MatchCount int
	LastSeen   time.Time
}

type poolEntry struct {
	worker *Worker
	record WorkerRecord
}

// Pool tracks worker liveness and load, assigns matches to the least-loaded
// live worker and forwards routed commands. A match's worker assignment is
// recorded in the Directory exactly once; every later assignment request for
// that match returns the recorded worker, because the match's in-memory state
// lives only there. Worker ids carry a per-process suffix, so a recorded
// assignment from another master process never matches a local worker and
// Send reports it unroutable instead of spawning a second copy of the match.
type Pool struct {
	directory Directory
	cfg       PoolConfig
	clock     func() time.Time
	sf        singleflight.Group

	mu       sync.Mutex
	workers  map[string]*poolEntry
	assigned map[string]assignment
}

// assignment caches a resolved matchID -> workerID mapping so the hot Submit
// path skips the Directory read. Entries age out with the match TTL.
type assignment struct {
	workerID string
	at       time.Time
}

func NewPool(directory Directory, cfg PoolConfig) *Pool {
	return &Pool{
		directory: directory,
		cfg:       cfg.withDefaults(),
		clock:     time.Now,
		workers:   make(map[string]*poolEntry),
		assigned:  make(map[string]assignment),
	}
}

// Register adds a worker and wires its heartbeat reporting. Call before the
// worker's Run loop starts.
func (p *Pool) Register(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[w.ID()] = &poolEntry{
		worker: w,
		record: WorkerRecord{ID: w.ID(), Status: domain.WorkerIdle, LastSeen: p.clock()},
	}
	w.health = p.Heartbeat
}

// Heartbeat records a liveness report. A worker that reports again after being
// marked DEAD is revived. The reported matchCount trails assignments the
// worker has not materialized yet (Assign increments the count optimistically
// when it picks); the skew is bounded by one heartbeat interval and only
// affects load spreading, never routing.
func (p *Pool) Heartbeat(workerID string, matchCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.workers[workerID]
	if !ok {
		return
	}
	e.record.LastSeen = p.clock()
	e.record.MatchCount = matchCount
	if matchCount > 0 {
		e.record.Status = domain.WorkerActive
	} else {
		e.record.Status = domain.WorkerIdle
	}
}

// Assign resolves the worker for a match, idempotently. A previously resolved
// assignment is served from the local cache; otherwise the Directory record
// decides, and only a still-unassigned match picks a new worker (lowest match
// count, ties by lowest id). Directory round-trips happen outside the pool
// lock so a slow Directory never stalls heartbeats or command routing;
// singleflight keeps concurrent first-join assignments for one match from
// racing each other.
func (p *Pool) Assign(ctx context.Context, matchID string) (string, error) {
	p.mu.Lock()
	a, cached := p.assigned[matchID]
	p.mu.Unlock()
	if cached {
		return a.workerID, nil
	}

	v, err, _ := p.sf.Do(matchID, func() (interface{}, error) {
		return p.resolveAssignment(ctx, matchID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Pool) resolveAssignment(ctx context.Context, matchID string) (string, error) {
	m, ok, err := LoadMatch(ctx, p.directory, matchID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrMatchNotFound
	}
	if m.WorkerID != "" {
		p.remember(matchID, m.WorkerID)
		return m.WorkerID, nil
	}

	p.mu.Lock()
	e := p.leastLoadedLocked()
	if e == nil {
		p.mu.Unlock()
		return "", domain.ErrNoAvailableWorker
	}
	workerID := e.record.ID
	e.record.MatchCount++
	e.record.Status = domain.WorkerActive
	p.mu.Unlock()

	m.WorkerID = workerID
	if err := SaveMatch(ctx, p.directory, m, p.cfg.MatchTTL); err != nil {
		p.mu.Lock()
		if e, ok := p.workers[workerID]; ok && e.record.MatchCount > 0 {
			e.record.MatchCount--
		}
		p.mu.Unlock()
		return "", err
	}
	p.remember(matchID, workerID)
	return workerID, nil
}

func (p *Pool) remember(matchID, workerID string) {
	p.mu.Lock()
	p.assigned[matchID] = assignment{workerID: workerID, at: p.clock()}
	p.mu.Unlock()
}

func (p *Pool) leastLoadedLocked() *poolEntry {
	var best *poolEntry
	for _, e := range p.workers {
		if e.record.Status == domain.WorkerDead {
			continue
		}
		if best == nil ||
			e.record.MatchCount < best.record.MatchCount ||
			(e.record.MatchCount == best.record.MatchCount && e.record.ID < best.record.ID) {
			best = e
		}
	}
	return best
}

// Send forwards a command to the addressed worker's inbox. Unknown or DEAD
// workers report ErrWorkerUnavailable, which the master surfaces as retryable.
func (p *Pool) Send(ctx context.Context, workerID string, cmd domain.Command) error {
	p.mu.Lock()
	e, ok := p.workers[workerID]
	dead := ok && e.record.Status == domain.WorkerDead
	p.mu.Unlock()
	if !ok || dead {
		return domain.ErrWorkerUnavailable
	}
	return e.worker.Enqueue(ctx, cmd)
}

// Run reaps workers that miss their liveness window until ctx is canceled.
func (p *Pool) Run(ctx context.Context) {
	interval := p.cfg.LivenessWindow / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reap()
		}
	}
}

func (p *Pool) reap() {
	now := p.clock()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.workers {
		if e.record.Status == domain.WorkerDead {
			continue
		}
		if now.Sub(e.record.LastSeen) > p.cfg.LivenessWindow {
			e.record.Status = domain.WorkerDead
			log.Printf("pool: worker %s missed liveness window, marked dead", e.record.ID)
		}
	}
	// the assignment cache follows the match records' lifetime
	for matchID, a := range p.assigned {
		if now.Sub(a.at) > p.cfg.MatchTTL {
			delete(p.assigned, matchID)
		}
	}
}

// Stats returns live worker and owned match counts for the health endpoint.
func (p *Pool) Stats() (workers, matches int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.workers {
		if e.record.Status == domain.WorkerDead {
			continue
		}
		workers++
		matches += e.record.MatchCount
	}
	return workers, matches
}
