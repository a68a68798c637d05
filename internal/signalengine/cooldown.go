package signalengine

import (
	"fmt"
	"sync"
	"time"
)

const cooldownWindow = 5 * time.Minute

// Cooldown deduplicates alerts keyed on (kind, price_bucket, side):
// during the 5-minute window a key is suppressed from alerting again,
// though the underlying signal is still persisted every cycle.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown builds an empty Cooldown.
func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

// Key builds the dedup key for a signal kind/price/side triple.
func Key(kind string, price float64, side Side) string {
	return fmt.Sprintf("%s:%.2f:%s", kind, price, side)
}

// Allow reports whether an alert for key may fire now, and if so marks
// the cooldown as started.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) < cooldownWindow {
		return false
	}
	c.last[key] = now
	return true
}
