package stream

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxReconnectDelay = 5 * time.Minute

// retryBackOff implements backoff.BackOff with the gateway's reconnect law:
// delay = rand(1..10) seconds · tryCount, capped. The try counter resets
// after the first successfully decoded data frame on a connection.
type retryBackOff struct {
	mu  sync.Mutex
	try int
	rng *rand.Rand
}

var _ backoff.BackOff = (*retryBackOff)(nil)

func newRetryBackOff() *retryBackOff {
	return &retryBackOff{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *retryBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.try++
	delay := time.Duration(b.rng.Intn(10)+1) * time.Second * time.Duration(b.try)
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}

func (b *retryBackOff) Reset() {
	b.mu.Lock()
	b.try = 0
	b.mu.Unlock()
}

func (b *retryBackOff) tries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.try
}
