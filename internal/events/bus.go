package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Bus is an in-process publish/subscribe channel between otherwise-unrelated
// editor components. Topics carry their payload type, so producers and
// consumers are checked at compile time.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]func(any)
	nextID uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]func(any))}
}

func (b *Bus) subscribe(topic string, fn func(any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]func(any))
	}
	b.nextID++
	id := b.nextID
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

func (b *Bus) publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]func(any), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		safeInvoke(topic, fn, payload)
	}
}

// a panicking subscriber must not take down the publisher
func safeInvoke(topic string, fn func(any), payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("topic", topic).Any("panic", r).Msg("event handler panicked")
		}
	}()
	fn(payload)
}

// Topic is a named event with a typed payload.
type Topic[T any] struct {
	Name string
}

// Publish delivers payload to every subscriber of the topic, synchronously.
func (t Topic[T]) Publish(b *Bus, payload T) {
	b.publish(t.Name, payload)
}

// Subscribe registers fn for the topic and returns an unsubscribe func.
func (t Topic[T]) Subscribe(b *Bus, fn func(T)) func() {
	return b.subscribe(t.Name, func(raw any) {
		if payload, ok := raw.(T); ok {
			fn(payload)
		}
	})
}
