package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the broker signals new work on queue, or ctx ends.
type Waiter interface {
	WaitForWork(ctx context.Context, queue string) error
}

// Notifier fans broker wakeups out to local worker goroutines, so N workers share
// one broker subscription per queue instead of N.
type Notifier interface {
	Subscribe(queue string) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds a single wait; a wakeup is broadcast when it elapses so
	// workers re-poll for delayed items that became due.
	WaitWindow time.Duration
	// Backoff is applied after a waiter error.
	Backoff time.Duration
}

type queueSubs struct {
	chans  map[chan struct{}]struct{}
	cancel context.CancelFunc
}

// DefaultNotifier is the default implementation of Notifier.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu     sync.Mutex
	queues map[string]*queueSubs
}

// NewNotifier constructs the default notifier.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		queues:     make(map[string]*queueSubs),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = 5 * time.Second
	}
	if n.backoff <= 0 {
		n.backoff = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe returns a buffered wake channel for queue and the func that releases it.
func (n *DefaultNotifier) Subscribe(queue string) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	qs, ok := n.queues[queue]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		qs = &queueSubs{chans: make(map[chan struct{}]struct{}), cancel: cancel}
		n.queues[queue] = qs
		go n.listen(ctx, queue)
	}

	ch := make(chan struct{}, 1)
	qs.chans[ch] = struct{}{}

	var once sync.Once
	unsub := func() {
		once.Do(func() { n.unsubscribe(queue, ch) })
	}
	return unsub, ch
}

func (n *DefaultNotifier) unsubscribe(queue string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	qs, ok := n.queues[queue]
	if !ok {
		return
	}
	if _, ok := qs.chans[ch]; !ok {
		return
	}
	delete(qs.chans, ch)
	drainAndClose(ch)
	if len(qs.chans) == 0 {
		qs.cancel()
		delete(n.queues, queue)
	}
}

// StopAll stops every listener and closes all subscriber channels.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for queue, qs := range n.queues {
		qs.cancel()
		for ch := range qs.chans {
			drainAndClose(ch)
		}
		delete(n.queues, queue)
	}
}

func (n *DefaultNotifier) listen(ctx context.Context, queue string) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForWork(waitCtx, queue)
		cancel()

		n.broadcast(queue)

		if err != nil && !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.backoff):
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(queue string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	qs, ok := n.queues[queue]
	if !ok {
		return
	}
	for ch := range qs.chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
