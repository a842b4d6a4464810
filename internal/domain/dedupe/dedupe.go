// Package dedupe tracks idempotency keys so a retried submission replays the
// first response instead of creating a second record.
package dedupe

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Result is the response remembered for a completed key.
type Result struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Claim is what SeenAndRecord found for a key.
type Claim struct {
	// Seen is false when the caller now owns the key.
	Seen bool
	// InFlight is true when another request owns the key and has not finished.
	InFlight bool
	Result   Result
}

// Deduper records idempotency keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was claimed and claims it if not.
	SeenAndRecord(ctx context.Context, key string) (Claim, error)
	// Complete stores the response for a key the caller owns.
	Complete(ctx context.Context, key string, res Result) error
	// Unrecord releases a key whose request failed so it can be retried.
	Unrecord(ctx context.Context, key string)
}

type entry struct {
	key      string
	done     bool
	result   Result
	expireAt time.Time
}

// InMemoryDeduper keeps keys in a bounded FIFO with a TTL.
type InMemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

var _ Deduper = (*InMemoryDeduper)(nil)

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) *InMemoryDeduper {
	d := &InMemoryDeduper{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: 50000,
		ttl:     24 * time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, key string) (Claim, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if el, ok := d.entries[key]; ok {
		e := el.Value.(*entry)
		return Claim{Seen: true, InFlight: !e.done, Result: e.result}, nil
	}
	if d.maxSize > 0 && len(d.entries) >= d.maxSize {
		d.remove(d.order.Front())
	}
	e := &entry{key: key}
	if d.ttl > 0 {
		e.expireAt = now.Add(d.ttl)
	}
	d.entries[key] = d.order.PushBack(e)
	return Claim{}, nil
}

// Complete implements Deduper.
func (d *InMemoryDeduper) Complete(_ context.Context, key string, res Result) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.entries[key]; ok {
		e := el.Value.(*entry)
		e.done = true
		e.result = res
	}
	return nil
}

// Unrecord implements Deduper.
func (d *InMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.entries[key]; ok {
		d.remove(el)
	}
}

// Size returns the number of tracked keys.
func (d *InMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.entries))
}

// expire drops entries from the front whose TTL passed. Entries are appended
// in time order so the scan stops at the first live one.
func (d *InMemoryDeduper) expire(now time.Time) {
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		e := el.Value.(*entry)
		if e.expireAt.IsZero() || now.Before(e.expireAt) {
			return
		}
		d.remove(el)
	}
}

func (d *InMemoryDeduper) remove(el *list.Element) {
	if el == nil {
		return
	}
	e := d.order.Remove(el).(*entry)
	delete(d.entries, e.key)
}
