package jobfactory

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// tickMillis is the throttle's fixed quantization window (spec §3).
const tickMillis int64 = 100

// throttle is the tick-quantized token bucket spec §4.1 describes: at most
// jobsPerTick admissions within any 100ms wall-clock tick, shared by every
// caller across the whole pool. Unlike golang.org/x/time/rate's smoothly
// draining bucket, admissions reset hard at each tick boundary, which is
// what the Throttle testable property (spec §8) demands verbatim.
type throttle struct {
	mu           sync.Mutex
	jobsPerTick  int
	currentTick  int64
	currentCalls int
}

func newThrottle(maxRate float64) *throttle {
	perTick := int(math.Ceil(maxRate * float64(tickMillis) / 1000))
	if perTick < 1 {
		perTick = 1
	}
	return &throttle{jobsPerTick: perTick}
}

// admit busy-waits, sleeping a random sub-tick interval between checks,
// until either the bucket admits a call or ctx is done. It returns false
// only when ctx is cancelled.
func (t *throttle) admit(ctx context.Context) bool {
	for {
		if t.tryAdmit() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(subTickSleep()):
		}
	}
}

// refund gives back an admission that turned out not to produce a job (the
// factory was already exhausted), so an empty Next doesn't permanently burn
// a slot from the tick it raced into. It's a best-effort correction: once the
// tick has rolled over there's nothing to refund into, which is fine — the
// bound this throttle enforces is an upper bound on admissions per tick, not
// a lower one.
func (t *throttle) refund() {
	t.mu.Lock()
	defer t.mu.Unlock()

	tick := time.Now().UnixMilli() / tickMillis
	if tick == t.currentTick && t.currentCalls > 0 {
		t.currentCalls--
	}
}

func (t *throttle) tryAdmit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tick := time.Now().UnixMilli() / tickMillis
	if tick != t.currentTick {
		t.currentTick = tick
		t.currentCalls = 0
	}

	if t.currentCalls >= t.jobsPerTick {
		return false
	}
	t.currentCalls++
	return true
}

func subTickSleep() time.Duration {
	// #nosec G404 -- pacing jitter, not a security-sensitive random value
	ms := rand.Intn(int(tickMillis)) + 1
	return time.Duration(ms) * time.Millisecond
}
