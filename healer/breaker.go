package healer

import "time"

// breakerState is the circuit breaker's current phase.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a per-process circuit breaker: Closed allows recoveries
// through freely, Open rejects them until its cooldown elapses, and
// HalfOpen admits attempts as probes until the outcome of one decides
// whether to go back to Closed or Open. Closed moves to Open once the number of recovery
// attempts admitted within RetryWindow reaches Retries — counting every
// admitted attempt, whether or not the spawn that followed it succeeded;
// killing and successfully restarting a supervisee still trips the breaker
// after enough restarts in one window. Open moves to HalfOpen once Cooldown
// elapses; HalfOpen moves to Closed on a successful probe or back to Open
// on a failed one.
type Breaker struct {
	state    breakerState
	until    time.Time
	attempts []time.Time
}

// NewBreaker returns a Breaker in its initial Closed state with an empty
// attempt ring.
func NewBreaker() *Breaker {
	return &Breaker{state: stateClosed}
}

// Admit consults the breaker at time now and, while Closed, records this
// attempt toward the sliding window. allow reports whether a recovery
// attempt should proceed; probing reports whether this attempt is a
// HalfOpen trial (success closes it, failure reopens it);
// opened reports whether this call is what just tripped the breaker to
// Open (always false when allow is true).
//
// While Closed, stale entries older than spec.RetryWindow are evicted
// first; if the remaining count has already reached spec.Retries, this
// attempt is rejected and the breaker opens for spec.Cooldown instead of
// being counted itself — otherwise it is appended to the ring and admitted.
func (b *Breaker) Admit(now time.Time, spec RecoverySpec) (allow, probing, opened bool) {
	switch b.state {
	case stateClosed:
		b.attempts = evictBefore(b.attempts, now.Add(-spec.RetryWindow))
		if uint32(len(b.attempts)) >= spec.Retries {
			b.state = stateOpen
			b.until = now.Add(spec.Cooldown)
			b.attempts = nil
			return false, false, true
		}
		b.attempts = append(b.attempts, now)
		return true, false, false

	case stateOpen:
		if now.Before(b.until) {
			return false, false, false
		}
		b.state = stateHalfOpen
		return true, true, false

	case stateHalfOpen:
		return true, true, false

	default:
		return false, false, false
	}
}

// IsOpen reports whether the breaker is currently rejecting attempts,
// without mutating state (used for read-only introspection such as tests
// and status reporting).
func (b *Breaker) IsOpen(now time.Time) bool {
	return b.state == stateOpen && now.Before(b.until)
}

// RecordSuccess reports a successful recovery. If the breaker was probing
// (HalfOpen), it closes and the attempt ring is cleared; otherwise nothing
// changes — a Closed-state success was already counted by Admit.
func (b *Breaker) RecordSuccess() (closed bool) {
	if b.state != stateHalfOpen {
		return false
	}
	b.state = stateClosed
	b.attempts = nil
	return true
}

// RecordFailure reports a failed recovery at time now. Only a failed
// HalfOpen probe has any effect here: it reopens the breaker immediately
// for spec.Cooldown. A Closed-state failure was already counted by Admit
// and needs no further action. opened reports whether this call is what
// reopened it.
func (b *Breaker) RecordFailure(now time.Time, spec RecoverySpec) (opened bool) {
	if b.state != stateHalfOpen {
		return false
	}
	b.state = stateOpen
	b.until = now.Add(spec.Cooldown)
	b.attempts = nil
	return true
}

func evictBefore(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
