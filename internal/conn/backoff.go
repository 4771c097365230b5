package conn

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newBackoff builds the reconnect delay policy: base doubled per
// attempt, capped at max, with randomization disabled so attempt N
// waits exactly min(base*2^(N-1), max).
func newBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = max
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}
