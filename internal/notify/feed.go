// Package notify fans PostgreSQL row-change notifications out to in-process
// subscribers. Delivery is at-least-once and best effort: a subscriber whose
// buffer is full misses the event and must recompute from the row itself.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"

	"copytrade/internal/metrics"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change is the payload written by the notify_row_change trigger.
type Change struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	Row   json.RawMessage `json:"row"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Decode unmarshals the new row image into dest.
func (c Change) Decode(dest any) error {
	return json.Unmarshal(c.Row, dest)
}

// DecodeOld unmarshals the previous row image of an UPDATE or DELETE.
func (c Change) DecodeOld(dest any) error {
	if len(c.Old) == 0 {
		return fmt.Errorf("%s %s has no previous row", c.Op, c.Table)
	}
	return json.Unmarshal(c.Old, dest)
}

// Filter selects changes by table, operation and optionally one column
// value of the new row. Empty fields match everything.
type Filter struct {
	Table  string
	Ops    []Op
	Column string
	Equals string
}

func (f Filter) Match(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if len(f.Ops) > 0 {
		found := false
		for _, op := range f.Ops {
			if op == c.Op {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Column == "" {
		return true
	}
	var row map[string]any
	if err := c.Decode(&row); err != nil {
		return false
	}
	value, ok := row[f.Column]
	if !ok || value == nil {
		return false
	}
	return fmt.Sprint(value) == f.Equals
}

type Subscription struct {
	C <-chan Change

	ch     chan Change
	filter Filter
	feed   *Feed
	id     uint64
	once   sync.Once
}

// Close detaches the subscription and closes C. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.remove(s.id)
	})
}

type Feed struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*Subscription)}
}

func (f *Feed) Subscribe(filter Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	sub := &Subscription{C: ch, ch: ch, filter: filter, feed: f}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return sub
	}
	f.nextID++
	sub.id = f.nextID
	f.subs[sub.id] = sub
	return sub
}

func (f *Feed) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return
	}
	delete(f.subs, id)
	close(sub.ch)
}

// Publish hands c to every matching subscriber without blocking.
func (f *Feed) Publish(c Change) {
	metrics.FeedEvents.WithLabelValues(c.Table, string(c.Op)).Inc()
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if !sub.filter.Match(c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			metrics.FeedDropped.Inc()
		}
	}
}

// Close ends every subscription; later Subscribe calls get a closed channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
}

// Subscribers reports how many subscriptions are open.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
