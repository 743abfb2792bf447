// Package events carries the kernel's pro-active/re-active event pair.
// A pro-active event is a synchronous validation gate published before a
// mutation becomes visible; a re-active event is an asynchronous
// notification fired once it is.
package events

import (
	"context"
	"sync"
)

// Kind identifies an event type
type Kind string

const (
	// PropertyIndexCreate is published around property index creation
	PropertyIndexCreate Kind = "property_index_create"
)

// Validator inspects a pro-active event payload and reports whether the
// mutation may proceed
type Validator interface {
	Validate(kind Kind, payload any) bool
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(kind Kind, payload any) bool

func (f ValidatorFunc) Validate(kind Kind, payload any) bool {
	return f(kind, payload)
}

// Bus routes pro-active events through registered validators and fans
// re-active events out to subscribers
type Bus struct {
	mu          sync.RWMutex
	validators  map[Kind][]Validator
	subscribers map[Kind]map[*Subscription]bool
	bufferSize  int

	shutdown   chan struct{}
	shutdownMu sync.Mutex
	isShutdown bool
}

// DefaultBufferSize is the per-subscriber channel depth used by NewBus
const DefaultBufferSize = 64

// Subscription represents a subscription to re-active events of one kind
type Subscription struct {
	kind      Kind
	channel   chan any
	bus       *Bus
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewBus creates an event bus with no validators and no subscribers
func NewBus() *Bus {
	return NewBusWithBuffer(DefaultBufferSize)
}

// NewBusWithBuffer creates an event bus with a custom per-subscriber
// channel depth
func NewBusWithBuffer(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		validators:  make(map[Kind][]Validator),
		subscribers: make(map[Kind]map[*Subscription]bool),
		bufferSize:  bufferSize,
		shutdown:    make(chan struct{}),
	}
}

// RegisterValidator adds a validator for pro-active events of the given
// kind. Validators run synchronously in registration order.
func (b *Bus) RegisterValidator(kind Kind, v Validator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validators[kind] = append(b.validators[kind], v)
}

// PublishProActive runs the kind's validators against the payload.
// The event is accepted only if every validator accepts it; a kind with
// no validators accepts everything.
func (b *Bus) PublishProActive(kind Kind, payload any) bool {
	b.mu.RLock()
	validators := b.validators[kind]
	b.mu.RUnlock()

	for _, v := range validators {
		if !v.Validate(kind, payload) {
			return false
		}
	}
	return true
}

// Subscribe creates a subscription to re-active events of one kind
func (b *Bus) Subscribe(ctx context.Context, kind Kind) (*Subscription, error) {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return nil, ErrBusShutDown
	}
	b.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		kind:    kind,
		channel: make(chan any, b.bufferSize),
		bus:     b,
		ctx:     subCtx,
		cancel:  cancel,
	}

	b.mu.Lock()
	if b.subscribers[kind] == nil {
		b.subscribers[kind] = make(map[*Subscription]bool)
	}
	b.subscribers[kind][sub] = true
	b.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-b.shutdown:
			sub.close()
		}
	}()

	return sub, nil
}

// PublishReActive sends a re-active event to all subscribers of the kind.
// Fire-and-forget: a subscriber with a full channel is skipped rather than
// blocking the publisher.
func (b *Bus) PublishReActive(kind Kind, payload any) {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.shutdownMu.Unlock()

	// Snapshot subscribers under lock; sends happen outside it
	b.mu.RLock()
	kindSubs := b.subscribers[kind]
	if len(kindSubs) == 0 {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(kindSubs))
	for sub := range kindSubs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.channel <- payload:
		default:
		}
	}
}

// SubscriberCount returns the number of subscribers for a kind
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[kind])
}

// Shutdown closes all subscriptions and stops the bus
func (b *Bus) Shutdown() {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.isShutdown = true
	b.shutdownMu.Unlock()

	close(b.shutdown)

	b.mu.Lock()
	for kind := range b.subscribers {
		for sub := range b.subscribers[kind] {
			sub.close()
		}
		delete(b.subscribers, kind)
	}
	b.mu.Unlock()
}

// Channel returns the subscription's event channel
func (s *Subscription) Channel() <-chan any {
	return s.channel
}

// Unsubscribe removes the subscription
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.bus.subscribers[s.kind] != nil {
		delete(s.bus.subscribers[s.kind], s)
		if len(s.bus.subscribers[s.kind]) == 0 {
			delete(s.bus.subscribers, s.kind)
		}
	}

	s.close()
}

// close closes the subscription channel safely (idempotent)
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
