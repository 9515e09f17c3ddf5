package resilience

import (
	"math/rand/v2"
	"time"
)

// maxBackoff caps a single wait so a till never stalls on a retry loop.
const maxBackoff = 5 * time.Second

// Backoff returns base*2^(attempt-1), capped at maxBackoff, spread by
// ±jitter (0.2 means 20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	d = min(d, maxBackoff)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * min(jitter, 1)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
