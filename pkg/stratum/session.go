package stratum

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Token identifies a caller session. It wraps a bounded internal slot
// index behind a UUID so the session table can be resized or re-packed
// without the facade's callers ever observing a raw index.
type Token struct {
	id   uuid.UUID
	slot int
}

// sessionSlot is one entry of the bounded session table: the epoch a
// session last published, inspected by the reclaimer (epoch.go) to compute
// the safe reclamation epoch, plus that session's private garbage list.
type sessionSlot struct {
	mu      sync.Mutex
	active  bool
	id      uuid.UUID
	epoch   atomic.Uint64
	garbage []garbageNode
}

// SessionRegistry is the bounded set of session slots the reclaimer
// inspects. Slot count is fixed at construction so Enter can fail fast
// with WarnMaxSessions instead of growing unboundedly.
type SessionRegistry struct {
	log   *zap.Logger
	slots []sessionSlot
	mu    sync.Mutex // guards slot acquisition only; per-slot state uses its own mutex
}

// NewSessionRegistry constructs a bounded session table sized to
// maxSessions, for use by collaborators outside this package (e.g.
// pkg/kvstore's Context) that need to build their own SessionRegistry
// and Reclaimer pair.
func NewSessionRegistry(maxSessions int, log *zap.Logger) *SessionRegistry {
	return newSessionRegistry(maxSessions, log)
}

func newSessionRegistry(maxSessions int, log *zap.Logger) *SessionRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionRegistry{
		log:   log,
		slots: make([]sessionSlot, maxSessions),
	}
}

// Enter allocates a free slot for a new session, publishing the current
// global epoch so the reclaimer never frees anything this session might
// still observe. Returns WarnMaxSessions when the table is full.
func (r *SessionRegistry) Enter(currentEpoch uint64) (Token, Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		s := &r.slots[i]
		s.mu.Lock()
		if !s.active {
			s.active = true
			s.id = uuid.New()
			s.epoch.Store(currentEpoch)
			s.garbage = s.garbage[:0]
			id := s.id
			s.mu.Unlock()
			r.log.Debug("session entered", zap.Int("slot", i), zap.String("token", id.String()))
			return Token{id: id, slot: i}, OK
		}
		s.mu.Unlock()
	}
	return Token{}, WarnMaxSessions
}

// Leave releases a session's slot, returning its garbage list for the
// caller (the reclaimer) to absorb before the slot is reused.
func (r *SessionRegistry) Leave(tok Token) ([]garbageNode, Status) {
	if tok.slot < 0 || tok.slot >= len(r.slots) {
		return nil, WarnInvalidToken
	}
	s := &r.slots[tok.slot]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.id != tok.id {
		return nil, WarnInvalidToken
	}
	garbage := s.garbage
	s.garbage = nil
	s.active = false
	r.log.Debug("session left", zap.Int("slot", tok.slot), zap.String("token", tok.id.String()))
	return garbage, OK
}

// touch re-publishes tok's current epoch, called once per operation so the
// reclaimer's safe-epoch computation never lags a long-lived session.
func (r *SessionRegistry) touch(tok Token, epoch uint64) bool {
	if tok.slot < 0 || tok.slot >= len(r.slots) {
		return false
	}
	s := &r.slots[tok.slot]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.id != tok.id {
		return false
	}
	s.epoch.Store(epoch)
	return true
}

// addGarbage appends a retired node to tok's private garbage list.
func (r *SessionRegistry) addGarbage(tok Token, g garbageNode) {
	if tok.slot < 0 || tok.slot >= len(r.slots) {
		return
	}
	s := &r.slots[tok.slot]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.id != tok.id {
		return
	}
	s.garbage = append(s.garbage, g)
}

// drainGarbage takes every active session's accumulated garbage,
// leaving the per-slot lists empty; called from the reclaimer's tick so
// a long-lived session does not hoard retired nodes indefinitely.
func (r *SessionRegistry) drainGarbage() []garbageNode {
	var out []garbageNode
	for i := range r.slots {
		s := &r.slots[i]
		s.mu.Lock()
		if s.active && len(s.garbage) > 0 {
			out = append(out, s.garbage...)
			s.garbage = nil
		}
		s.mu.Unlock()
	}
	return out
}

// minActiveEpoch returns the minimum published epoch across active
// sessions, or current (meaning "no constraint") if none are active.
func (r *SessionRegistry) minActiveEpoch(current uint64) uint64 {
	min := current
	for i := range r.slots {
		s := &r.slots[i]
		s.mu.Lock()
		if s.active {
			if e := s.epoch.Load(); e < min {
				min = e
			}
		}
		s.mu.Unlock()
	}
	return min
}

// activeCount reports how many session slots are presently occupied.
func (r *SessionRegistry) activeCount() int {
	n := 0
	for i := range r.slots {
		s := &r.slots[i]
		s.mu.Lock()
		if s.active {
			n++
		}
		s.mu.Unlock()
	}
	return n
}
