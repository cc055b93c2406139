// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase        = time.Second
	backoffFactor      = 1.5
	backoffMaxExponent = 8
	backoffCap         = 30 * time.Second
)

// reconnectDelay computes the delay before a reconnect attempt as a pure
// function of how many consecutive attempts have failed. The exponent is a
// random index bounded by the attempt count, so repeated failures back off
// exponentially on average without every client in trouble retrying in
// lockstep. The delay never exceeds backoffCap.
func reconnectDelay(attempt int) time.Duration {
	if attempt > backoffMaxExponent {
		attempt = backoffMaxExponent
	}
	idx := rand.Intn(attempt + 1)

	d := time.Duration(float64(backoffBase) * math.Pow(backoffFactor, float64(idx)))
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
