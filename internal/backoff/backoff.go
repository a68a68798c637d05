// Package backoff provides jittered retry pacing for reconnect and
// persistence-retry loops, built on a seedable PRNG so pacing is
// reproducible in tests.
package backoff

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// rng is a PCG-XSH-RR pseudo-random generator, safe for concurrent use.
type rng struct {
	mu    sync.Mutex
	state uint64
	inc   uint64
}

func newRNG(seed int64) *rng {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &rng{}
	r.inc = uint64(seed)<<1 | 1
	r.state = 0
	r.step()
	r.state += uint64(seed)
	r.step()
	return r
}

func (r *rng) step() {
	r.state = r.state*6364136223846793005 + r.inc
}

func (r *rng) Uint32() uint32 {
	r.mu.Lock()
	old := r.state
	r.step()
	r.mu.Unlock()

	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

func (r *rng) Float64() float64 {
	return float64(r.Uint32()) / (1 << 32)
}

// State returns the internal PRNG state for persistence across restarts.
func (r *rng) State() (state, inc uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.inc
}

// StateBytes returns the PRNG state as a byte slice.
func (r *rng) StateBytes() []byte {
	st, inc := r.State()
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], st)
	binary.BigEndian.PutUint64(buf[8:16], inc)
	return buf
}

// Policy paces fixed-delay reconnect attempts and exponential-backoff
// persistence retries, both with a jitter component so that many
// processes restarting together do not synchronize.
type Policy struct {
	rng *rng
}

// New builds a Policy seeded from seed. A seed of 0 derives from the
// current time, which is the right choice for production; tests should
// pass a fixed nonzero seed for reproducibility.
func New(seed int64) *Policy {
	return &Policy{rng: newRNG(seed)}
}

// jitterFraction returns a multiplier in [1-frac, 1+frac).
func (p *Policy) jitterFraction(frac float64) float64 {
	return 1 - frac + p.rng.Float64()*2*frac
}

// FixedDelay returns base delay with +/-20% jitter, for reconnect pacing
// where the spec names a fixed delay (default 5s) rather than a growing
// backoff curve.
func (p *Policy) FixedDelay(base time.Duration) time.Duration {
	return time.Duration(float64(base) * p.jitterFraction(0.2))
}

// ExponentialDelay returns base * 2^attempt, capped at max, with +/-20%
// jitter, for persistence-retry pacing after a batch nack.
func (p *Policy) ExponentialDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := math.Pow(2, float64(attempt))
	d := time.Duration(float64(base) * mult)
	if d > max || d <= 0 {
		d = max
	}
	return time.Duration(float64(d) * p.jitterFraction(0.2))
}
