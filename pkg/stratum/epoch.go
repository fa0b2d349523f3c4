package stratum

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// garbageNode is one retired node awaiting reclamation: a node that a
// writer has already unthreaded from the tree, tagged with the global
// epoch in effect at retirement time. It cannot be freed until every
// session's published epoch has advanced past retiredAt.
type garbageNode struct {
	border    *borderNode // exactly one of border/interior/value is non-nil
	interior  *interiorNode
	value     *Value
	retiredAt uint64
}

// Reclaimer is the epoch-based memory reclaimer: a monotonic global
// epoch, a per-session minimum computed over the session registry, and a
// background goroutine that frees anything retired strictly before that
// minimum. Retired nodes live on the retiring session's own garbage
// list, and are absorbed into a single global pending pool only once the
// reclaimer actually needs to consider them (on Leave, or
// opportunistically from the tick loop).
type Reclaimer struct {
	log *zap.Logger

	globalEpoch atomic.Uint64

	mu      sync.Mutex
	pending []garbageNode

	sessions *SessionRegistry
	metrics  *Metrics

	tickBase time.Duration
	tickMax  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewReclaimer constructs a reclaimer bound to sessions, starting its
// global epoch at 1 (0 is reserved to mean "session never entered").
func NewReclaimer(sessions *SessionRegistry, tickBase, tickMax time.Duration, log *zap.Logger) *Reclaimer {
	if log == nil {
		log = zap.NewNop()
	}
	if tickBase <= 0 {
		tickBase = 40 * time.Millisecond
	}
	if tickMax <= 0 {
		tickMax = tickBase
	}
	r := &Reclaimer{
		log:      log,
		sessions: sessions,
		tickBase: tickBase,
		tickMax:  tickMax,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	r.globalEpoch.Store(1)
	return r
}

// SetMetrics attaches a Metrics instance the background loop reports
// reclaimed-node and pending-garbage counts to. Optional; a reclaimer
// with no metrics attached still reclaims, it just doesn't publish.
func (r *Reclaimer) SetMetrics(m *Metrics) {
	r.metrics = m
}

// CurrentEpoch returns the current global epoch, for a session to publish
// on enter or after completing an operation.
func (r *Reclaimer) CurrentEpoch() uint64 {
	return r.globalEpoch.Load()
}

// Advance bumps the global epoch. Called after structural mutations
// (split, promotion, unthreading) so readers that entered before the
// mutation are distinguishable from readers that could observe it.
func (r *Reclaimer) Advance() uint64 {
	return r.globalEpoch.Inc()
}

// RetireBorder queues a logically-removed border node for reclamation
// once safe, filed on tok's private garbage list.
func (r *Reclaimer) RetireBorder(tok Token, b *borderNode) {
	epoch := r.globalEpoch.Load()
	r.sessions.addGarbage(tok, garbageNode{border: b, retiredAt: epoch})
}

// RetireInterior queues a logically-removed interior node.
func (r *Reclaimer) RetireInterior(tok Token, n *interiorNode) {
	epoch := r.globalEpoch.Load()
	r.sessions.addGarbage(tok, garbageNode{interior: n, retiredAt: epoch})
}

// RetireValue queues a superseded value buffer (an in-place put that
// replaced an existing slot's payload, or a deleted slot's owned value).
func (r *Reclaimer) RetireValue(tok Token, v *Value) {
	if v == nil {
		return
	}
	epoch := r.globalEpoch.Load()
	r.sessions.addGarbage(tok, garbageNode{value: v, retiredAt: epoch})
}

// absorb pulls a session's drained garbage list into the reclaimer's
// pending pool.
func (r *Reclaimer) absorb(garbage []garbageNode) {
	if len(garbage) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, garbage...)
	r.mu.Unlock()
}

// LeaveSession releases tok's slot and absorbs whatever garbage it
// accumulated, so nothing it retired can be freed out from under a
// pointer some other session may still hold.
func (r *Reclaimer) LeaveSession(tok Token) Status {
	garbage, status := r.sessions.Leave(tok)
	if status != OK {
		return status
	}
	r.absorb(garbage)
	return OK
}

// TryReclaim frees every pending node retired strictly before the minimum
// epoch published across active sessions. Returns the count freed. Safe
// to call opportunistically from any goroutine, not just the background
// ticker.
func (r *Reclaimer) TryReclaim() int {
	safe := r.sessions.minActiveEpoch(r.globalEpoch.Load())

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pending[:0]
	freed := 0
	for _, g := range r.pending {
		if g.retiredAt < safe {
			freed++
			continue // dropped; Go's GC reclaims the backing memory
		}
		kept = append(kept, g)
	}
	r.pending = kept
	return freed
}

// PendingCount reports how many nodes are queued in the reclaimer's global
// pending pool. It does not include garbage still sitting on active
// sessions' private lists, which are absorbed only on Leave or tick.
func (r *Reclaimer) PendingCount() int {
	r.mu.Lock()
	n := len(r.pending)
	r.mu.Unlock()
	return n
}

// Start launches the background reclamation goroutine: a coarse ticker
// (~40ms by default) wrapped in a cenkalti/backoff/v4 idle schedule.
// While a tick finds nothing to free, the interval backs off toward
// tickMax; the moment a tick reclaims anything, it resets to tickBase.
// This is scheduling policy around the goroutine only; it never
// substitutes for the bounded CAS spins on the hot put/get/remove path.
func (r *Reclaimer) Start() {
	go r.loop()
}

func (r *Reclaimer) loop() {
	defer close(r.doneCh)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.tickBase
	bo.MaxInterval = r.tickMax
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0
	bo.Reset()

	interval := r.tickBase
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-timer.C:
			r.absorb(r.sessions.drainGarbage())
			freed := r.TryReclaim()
			if r.metrics != nil {
				r.metrics.recordReclaimed(freed)
				r.metrics.setPendingGarbage(r.PendingCount())
				r.metrics.setActiveSessions(r.sessions.activeCount())
			}
			if freed > 0 {
				bo.Reset()
				interval = r.tickBase
				r.log.Debug("reclaimer tick freed garbage", zap.Int("count", freed))
			} else {
				interval = bo.NextBackOff()
				if interval <= 0 {
					interval = r.tickMax
				}
			}
			timer.Reset(interval)
		}
	}
}

// Stop halts the background goroutine and blocks until it has exited.
func (r *Reclaimer) Stop() {
	r.once.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}
