package mongolite

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/madhouselabs/mongolite/internal/config"
	"github.com/madhouselabs/mongolite/internal/sqlengine"
)

// ChangeEventType identifies what kind of change a ChangeEvent reports.
type ChangeEventType string

const (
	ChangeInsert  ChangeEventType = "insert"
	ChangeUpdate  ChangeEventType = "update"
	ChangeDelete  ChangeEventType = "delete"
	ChangeDropped ChangeEventType = "dropped"
)

// ChangeEvent is one notification delivered by a Subscription (§4.H).
// FullDocument is populated on insert, and on update only when the
// subscription was opened with updateLookup. A ChangeDropped event
// means the consumer fell behind and DroppedCount events between the
// last delivered seq and this one were discarded rather than queued.
type ChangeEvent struct {
	Seq                      int64
	Collection               string
	OperationType            ChangeEventType
	DocumentID               string
	FullDocument             Document
	FullDocumentBeforeChange Document
	UpdateDescription        map[string]interface{}
	DroppedCount             int
}

type subscriptionState int

const (
	stateCreated subscriptionState = iota
	stateRunning
	stateClosed
)

// Subscription is a single watcher's view of the change log: a bounded
// queue fed by the shared poller and drained by repeated calls to
// Next. Capacity is fixed at creation; once full, the oldest queued
// event is dropped to make room and a single ChangeDropped event is
// surfaced in its place, per §4.H/§5's bounded-queue requirement.
type Subscription struct {
	mu           sync.Mutex
	queue        []ChangeEvent
	capacity     int
	droppedCount int
	notify       chan struct{}
	state        subscriptionState
	collection   string
	updateLookup bool
	afterSeq     int64

	manager *streamManager
}

func newSubscription(collection string, capacity int, updateLookup bool, afterSeq int64) *Subscription {
	return &Subscription{
		capacity:     capacity,
		notify:       make(chan struct{}, 1),
		state:        stateCreated,
		collection:   collection,
		updateLookup: updateLookup,
		afterSeq:     afterSeq,
	}
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) push(ev ChangeEvent) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.capacity {
		s.queue = s.queue[1:]
		s.droppedCount++
	}
	s.queue = append(s.queue, ev)
	if ev.Seq > s.afterSeq {
		s.afterSeq = ev.Seq
	}
	s.mu.Unlock()
	s.signal()
}

// Next blocks until an event is available, ctx is cancelled, or the
// subscription is closed (in which case it returns ErrChangeStreamClosed
// once the queue has been fully drained).
func (s *Subscription) Next(ctx context.Context) (ChangeEvent, error) {
	for {
		s.mu.Lock()
		if s.droppedCount > 0 {
			n := s.droppedCount
			s.droppedCount = 0
			collection := s.collection
			s.mu.Unlock()
			return ChangeEvent{Collection: collection, OperationType: ChangeDropped, DroppedCount: n}, nil
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.state == stateClosed
		if !closed {
			s.state = stateRunning
		}
		s.mu.Unlock()
		if closed {
			return ChangeEvent{}, ErrChangeStreamClosed
		}

		select {
		case <-ctx.Done():
			return ChangeEvent{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close transitions the subscription to Closed and unregisters it from
// the shared poller. Any call to Next already blocked, or made after
// Close, returns once the queue drains (§4.H's Created→Running→Closed
// state machine).
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	s.mu.Unlock()
	s.signal()
	if s.manager != nil {
		s.manager.unsubscribe(s)
	}
}

// WatchOptions configures a Subscription.
type WatchOptions struct {
	// FullDocument, when true, asks for the post-update document body
	// on every update event, not just its UpdateDescription ("updateLookup" in §4.H).
	FullDocument bool
}

// streamManager runs the single poller shared by every subscription
// opened against one Database, the same one-ticker-many-consumers shape
// as the teacher's PerIPRateLimiter.cleanupLoop.
type streamManager struct {
	engine *sqlengine.Engine
	cfg    config.ChangeStreamConfig

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	lastSeq int64
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

func newStreamManager(engine *sqlengine.Engine, cfg config.ChangeStreamConfig) *streamManager {
	m := &streamManager{
		engine: engine,
		cfg:    cfg,
		subs:   make(map[*Subscription]struct{}),
		stop:   make(chan struct{}),
	}
	m.wg.Add(1)
	go m.pollLoop()
	return m
}

func (m *streamManager) pollLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *streamManager) poll() {
	ctx := context.Background()
	events, err := m.engine.ChangesSince(ctx, "", m.lastSeq, m.cfg.BatchSize)
	if err != nil || len(events) == 0 {
		return
	}
	m.lastSeq = events[len(events)-1].Seq

	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, raw := range events {
		ce := toChangeEvent(raw)
		for _, sub := range subs {
			if sub.collection != "" && sub.collection != raw.Collection {
				continue
			}
			sub.mu.Lock()
			seen := raw.Seq <= sub.afterSeq
			wantsFullDoc := sub.updateLookup
			sub.mu.Unlock()
			if seen {
				continue
			}
			deliver := ce
			if ce.OperationType == ChangeUpdate && !wantsFullDoc {
				deliver.FullDocument = nil
			}
			sub.push(deliver)
		}
	}

	m.compact()
}

func (m *streamManager) compact() {
	m.mu.Lock()
	var min int64 = -1
	for s := range m.subs {
		s.mu.Lock()
		seq := s.afterSeq
		s.mu.Unlock()
		if min == -1 || seq < min {
			min = seq
		}
	}
	m.mu.Unlock()
	if min > 0 {
		m.engine.CompactChangeLog(context.Background(), min)
	}
}

func (m *streamManager) subscribe(sub *Subscription) {
	sub.manager = m
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
}

func (m *streamManager) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	delete(m.subs, sub)
	m.mu.Unlock()
}

func (m *streamManager) close() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
	for _, s := range subs {
		s.Close()
	}
}

func (m *streamManager) watch(ctx context.Context, collection string, opts WatchOptions, capacity int) (*Subscription, error) {
	afterSeq, err := m.engine.CurrentSeq(ctx)
	if err != nil {
		return nil, wrapEngineErr("watch", err)
	}
	sub := newSubscription(collection, capacity, opts.FullDocument, afterSeq)
	m.subscribe(sub)
	return sub, nil
}

func toChangeEvent(ev sqlengine.ChangeEvent) ChangeEvent {
	out := ChangeEvent{
		Seq:           ev.Seq,
		Collection:    ev.Collection,
		OperationType: ChangeEventType(ev.Operation),
		DocumentID:    ev.DocumentID,
	}
	if ev.FullDocument != nil {
		if doc, err := decodeDocument(ev.DocumentID, *ev.FullDocument); err == nil {
			out.FullDocument = doc
		}
	}
	if ev.BeforeDocument != nil {
		if doc, err := decodeDocument(ev.DocumentID, *ev.BeforeDocument); err == nil {
			out.FullDocumentBeforeChange = doc
		}
	}
	if ev.UpdateDescription != nil {
		var desc map[string]interface{}
		if err := json.Unmarshal([]byte(*ev.UpdateDescription), &desc); err == nil {
			out.UpdateDescription = desc
		}
	}
	return out
}
