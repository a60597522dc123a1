// internal/idle/broadcast.go
//
// Cross-session logout broadcast.
//
// Context
// -------
// A logout must reach every open session of the same principal, not
// just the one that clicked the button.  Broadcast is the fan-out
// seam: the Redis implementation carries the signal across processes
// via pub/sub, and LocalBroadcast covers single-process deployments
// and tests.  Payloads carry no information—receipt alone means
// "terminate now".
package idle

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Broadcast delivers termination signals keyed by principal.
type Broadcast interface {
	// Publish signals every subscriber for the principal.
	Publish(ctx context.Context, principal string) error
	// Subscribe returns a channel that receives one value per signal,
	// and a cancel func that releases the subscription.  The channel
	// closes after cancel.
	Subscribe(ctx context.Context, principal string) (<-chan struct{}, func())
}

func channelFor(principal string) string {
	return "idle:logout:" + principal
}

/*──────────────────────────── Redis ────────────────────────────────*/

// RedisBroadcast fans signals out through Redis pub/sub, reaching
// sessions held by other processes.
type RedisBroadcast struct {
	client *redis.Client
}

// NewRedisBroadcast wraps an established client.
func NewRedisBroadcast(client *redis.Client) *RedisBroadcast {
	return &RedisBroadcast{client: client}
}

func (b *RedisBroadcast) Publish(ctx context.Context, principal string) error {
	return b.client.Publish(ctx, channelFor(principal), "1").Err()
}

func (b *RedisBroadcast) Subscribe(ctx context.Context, principal string) (<-chan struct{}, func()) {
	sub := b.client.Subscribe(ctx, channelFor(principal))
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		for range sub.Channel() {
			select {
			case out <- struct{}{}:
			default: // a pending signal already says everything
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				zap.S().Warnw("idle broadcast unsubscribe failed",
					"principal", principal, "err", err)
			}
		})
	}
	return out, cancel
}

/*──────────────────────────── local ────────────────────────────────*/

// LocalBroadcast is the in-process implementation, used when Redis is
// not configured and throughout the tests.
type LocalBroadcast struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan struct{}
}

func NewLocalBroadcast() *LocalBroadcast {
	return &LocalBroadcast{subs: make(map[string]map[int]chan struct{})}
}

func (b *LocalBroadcast) Publish(_ context.Context, principal string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[principal] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *LocalBroadcast) Subscribe(_ context.Context, principal string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[principal] == nil {
		b.subs[principal] = make(map[int]chan struct{})
	}
	b.subs[principal][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[principal], id)
			if len(b.subs[principal]) == 0 {
				delete(b.subs, principal)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
