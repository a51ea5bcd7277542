package internal

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig configures an exponential backoff schedule with optional
// jitter, grounded on the teacher's retry-delay computation and reused
// here for bounded-retry concerns that are not job-algorithm retries
// (callback delivery) — this system does not retry a failed processing
// job.
type BackoffConfig struct {
	MaxRetries          uint32
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// Backoff computes successive delays from a BackoffConfig.
type Backoff struct {
	BackoffConfig
}

// Next returns the delay before the given attempt (1-indexed) and whether
// another attempt is still permitted under MaxRetries.
func (b *Backoff) Next(attempt uint32) (time.Duration, bool) {
	if b.MaxRetries > 0 && attempt > b.MaxRetries {
		return 0, false
	}
	exp := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))
	if exp > float64(b.MaxInterval) {
		exp = float64(b.MaxInterval)
	}
	if b.RandomizationFactor > 0 {
		delta := b.RandomizationFactor * exp
		minExp := exp - delta
		maxExp := exp + delta
		exp = minExp + rand.Float64()*(maxExp-minExp)
	}
	return time.Duration(exp), true
}
