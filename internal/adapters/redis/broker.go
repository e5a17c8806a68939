// Package redis provides the Redis-backed priority queue broker and progress pub/sub.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-media-jobs/internal/core"
)

const (
	// NamespaceJobs holds job work items.
	NamespaceJobs = "mediajobs:jobs"
	// NamespaceWebhooks holds webhook delivery tasks.
	NamespaceWebhooks = "mediajobs:webhooks"
)

// ErrNoWork is returned by Reserve when no lane has a due item.
var ErrNoWork = core.ErrNoWork

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	Namespace string
	// Lanes lists every lane the broker manages. Stats and Remove iterate it.
	Lanes  []string
	Logger *slog.Logger
	Now    func() time.Time
}

// Broker is a priority queue with leases on top of Redis sorted sets. Items are
// identified by caller-chosen ids, so enqueueing the same id twice keeps one item.
// Within a lane ready items are served in the order they became ready.
type Broker struct {
	client redis.UniversalClient
	ns     string
	base   string
	lanes  []string
	logger *slog.Logger
	now    func() time.Time
}

var _ core.Broker = (*Broker)(nil)

// NewBroker creates a Broker.
func NewBroker(client redis.UniversalClient, opts BrokerOptions) (*Broker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if len(opts.Lanes) == 0 {
		return nil, errors.New("at least one lane is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Broker{
		client: client,
		ns:     opts.Namespace,
		base:   "{" + opts.Namespace + "}",
		lanes:  append([]string(nil), opts.Lanes...),
		logger: logger.With("component", "broker", "namespace", opts.Namespace),
		now:    now,
	}, nil
}

// Name returns the broker namespace.
func (b *Broker) Name() string { return b.ns }

func (b *Broker) laneKey(lane string) string    { return b.base + ":lane:" + lane }
func (b *Broker) lanePrefix() string            { return b.base + ":lane:" }
func (b *Broker) delayedKey(lane string) string { return b.base + ":delayed:" + lane }
func (b *Broker) seqKey() string                { return b.base + ":seq" }
func (b *Broker) itemKey(id string) string      { return b.base + ":item:" + id }
func (b *Broker) itemPrefix() string            { return b.base + ":item:" }
func (b *Broker) leasesKey() string             { return b.base + ":leases" }
func (b *Broker) deadKey() string               { return b.base + ":dead" }
func (b *Broker) notifyChannel() string         { return b.base + ":notify" }

func ms(t time.Time) int64 { return t.UnixMilli() }

func ifAbsentFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (b *Broker) knownLane(lane string) bool {
	for _, l := range b.lanes {
		if l == lane {
			return true
		}
	}
	return false
}

// Enqueue stores the payload and schedules it on its lane. A zero delay publishes a
// wakeup to waiting workers. With IfAbsent an id the broker still holds is left alone.
func (b *Broker) Enqueue(ctx context.Context, p core.EnqueueParams) error {
	if p.ID == "" {
		return errors.New("item id is required")
	}
	if !b.knownLane(p.Lane) {
		return fmt.Errorf("unknown lane %q", p.Lane)
	}
	now := b.now()
	availableAt := now.Add(max(p.Delay, 0))

	ready, err := enqueueScript.Run(ctx, b.client,
		[]string{
			b.itemKey(p.ID), b.leasesKey(), b.deadKey(),
			b.laneKey(p.Lane), b.delayedKey(p.Lane), b.seqKey(),
		},
		p.ID, string(p.Payload), p.Lane, ms(now), ms(availableAt), ifAbsentFlag(p.IfAbsent),
	).Int()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", p.ID, err)
	}
	if ready == 1 {
		b.client.Publish(ctx, b.notifyChannel(), p.Lane)
	}
	return nil
}

// Reserve leases the first due item, draining lanes in the given order. It returns
// ErrNoWork when nothing is due.
func (b *Broker) Reserve(ctx context.Context, lanes []string, lease time.Duration) (*core.Lease, error) {
	if len(lanes) == 0 {
		lanes = b.lanes
	}
	if lease <= 0 {
		return nil, errors.New("lease must be positive")
	}
	keys := make([]string, 0, 2*len(lanes)+2)
	keys = append(keys, b.leasesKey(), b.seqKey())
	token := uuid.NewString()
	now := b.now()
	args := []any{ms(now), ms(now.Add(lease)), token, b.itemPrefix()}
	for _, l := range lanes {
		keys = append(keys, b.laneKey(l), b.delayedKey(l))
		args = append(args, l)
	}

	res, err := reserveScript.Run(ctx, b.client, keys, args...).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoWork
	}
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("reserve: unexpected reply length %d", len(res))
	}
	attempt, _ := res[3].(int64)
	payload, _ := res[2].(string)
	id, _ := res[0].(string)
	lane, _ := res[1].(string)
	return &core.Lease{
		Queue:   b.ns,
		Lane:    lane,
		ID:      id,
		Token:   token,
		Payload: []byte(payload),
		Attempt: int(attempt),
	}, nil
}

// Extend renews a lease. False means the lease was lost (expired and requeued or removed).
func (b *Broker) Extend(ctx context.Context, l *core.Lease, lease time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, b.client,
		[]string{b.leasesKey(), b.itemKey(l.ID)},
		l.ID, l.Token, ms(b.now().Add(lease)),
	).Int()
	if err != nil {
		return false, fmt.Errorf("extend lease %s: %w", l.ID, err)
	}
	return n == 1, nil
}

// Ack removes a leased item for good. Acking a lost lease is a no-op.
func (b *Broker) Ack(ctx context.Context, l *core.Lease) error {
	n, err := ackScript.Run(ctx, b.client, []string{b.leasesKey(), b.itemKey(l.ID)}, l.ID, l.Token).Int()
	if err != nil {
		return fmt.Errorf("ack %s: %w", l.ID, err)
	}
	if n == 0 {
		b.logger.DebugContext(ctx, "ack on lost lease", "id", l.ID)
	}
	return nil
}

// Nack returns a leased item to its lane after delay.
func (b *Broker) Nack(ctx context.Context, l *core.Lease, delay time.Duration) error {
	availableAt := b.now().Add(max(delay, 0))
	n, err := nackScript.Run(ctx, b.client,
		[]string{b.leasesKey(), b.itemKey(l.ID), b.delayedKey(l.Lane)},
		l.ID, l.Token, ms(availableAt),
	).Int()
	if err != nil {
		return fmt.Errorf("nack %s: %w", l.ID, err)
	}
	if n == 0 {
		b.logger.DebugContext(ctx, "nack on lost lease", "id", l.ID)
		return nil
	}
	if delay <= 0 {
		b.client.Publish(ctx, b.notifyChannel(), l.Lane)
	}
	return nil
}

// DeadLetter parks a leased item with a reason for operator inspection.
func (b *Broker) DeadLetter(ctx context.Context, l *core.Lease, reason string) error {
	n, err := deadLetterScript.Run(ctx, b.client,
		[]string{b.leasesKey(), b.itemKey(l.ID), b.deadKey()},
		l.ID, l.Token, ms(b.now()), reason,
	).Int()
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", l.ID, err)
	}
	if n == 1 {
		b.logger.WarnContext(ctx, "item dead-lettered", "id", l.ID, "lane", l.Lane, "reason", reason)
	}
	return nil
}

// Remove deletes an item wherever it is (lane, lease or dead-letter). It reports whether
// the item existed.
func (b *Broker) Remove(ctx context.Context, id string) (bool, error) {
	pipe := b.client.TxPipeline()
	for _, l := range b.lanes {
		pipe.ZRem(ctx, b.laneKey(l), id)
		pipe.ZRem(ctx, b.delayedKey(l), id)
	}
	pipe.ZRem(ctx, b.leasesKey(), id)
	pipe.ZRem(ctx, b.deadKey(), id)
	del := pipe.Del(ctx, b.itemKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove %s: %w", id, err)
	}
	return del.Val() > 0, nil
}

// RequeueExpired returns up to limit items whose lease expired to their lanes.
func (b *Broker) RequeueExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	n, err := requeueExpiredScript.Run(ctx, b.client, []string{b.leasesKey(), b.seqKey()},
		ms(b.now()), limit, b.itemPrefix(), b.lanePrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	}
	if n > 0 {
		b.logger.InfoContext(ctx, "requeued expired leases", "count", n)
		b.client.Publish(ctx, b.notifyChannel(), "requeue")
	}
	return n, nil
}

// ListDeadLetters returns up to limit parked items, oldest first.
func (b *Broker) ListDeadLetters(ctx context.Context, limit int) ([]core.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := b.client.ZRangeWithScores(ctx, b.deadKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := b.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, z := range ids {
		cmds[i] = pipe.HGetAll(ctx, b.itemKey(fmt.Sprint(z.Member)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load dead letters: %w", err)
	}
	out := make([]core.DeadLetter, 0, len(ids))
	for i, z := range ids {
		fields := cmds[i].Val()
		out = append(out, core.DeadLetter{
			ID:       fmt.Sprint(z.Member),
			Lane:     fields["lane"],
			Payload:  []byte(fields["payload"]),
			Reason:   fields["reason"],
			ParkedAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return out, nil
}

// ReplayDeadLetter moves a parked item back onto its lane.
func (b *Broker) ReplayDeadLetter(ctx context.Context, id string) (bool, error) {
	n, err := replayScript.Run(ctx, b.client, []string{b.deadKey(), b.itemKey(id), b.seqKey()},
		id, b.lanePrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("replay %s: %w", id, err)
	}
	if n == 1 {
		b.client.Publish(ctx, b.notifyChannel(), "replay")
	}
	return n == 1, nil
}

// Stats counts ready and delayed items per lane plus leased and parked items.
func (b *Broker) Stats(ctx context.Context) (core.QueueStats, error) {
	now := strconv.FormatInt(ms(b.now()), 10)
	pipe := b.client.Pipeline()
	ready := make(map[string]*redis.IntCmd, len(b.lanes))
	due := make(map[string]*redis.IntCmd, len(b.lanes))
	delayed := make(map[string]*redis.IntCmd, len(b.lanes))
	for _, l := range b.lanes {
		ready[l] = pipe.ZCard(ctx, b.laneKey(l))
		due[l] = pipe.ZCount(ctx, b.delayedKey(l), "-inf", now)
		delayed[l] = pipe.ZCount(ctx, b.delayedKey(l), "("+now, "+inf")
	}
	leased := pipe.ZCard(ctx, b.leasesKey())
	dead := pipe.ZCard(ctx, b.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return core.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	st := core.QueueStats{
		Ready:      make(map[string]int64, len(b.lanes)),
		Delayed:    make(map[string]int64, len(b.lanes)),
		Leased:     leased.Val(),
		DeadLetter: dead.Val(),
	}
	for _, l := range b.lanes {
		st.Ready[l] = ready[l].Val() + due[l].Val()
		st.Delayed[l] = delayed[l].Val()
	}
	return st, nil
}

// WaitForWork blocks until a wakeup is published for the namespace or ctx ends.
// queue is accepted for the notifier contract; all lanes share one channel.
func (b *Broker) WaitForWork(ctx context.Context, _ string) error {
	sub := b.client.Subscribe(ctx, b.notifyChannel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-sub.Channel():
		if !ok {
			return errors.New("wakeup channel closed")
		}
		return nil
	}
}
