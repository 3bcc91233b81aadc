package sched

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Event is a fired item or a lifecycle notice delivered to subscribers.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Handler consumes an event. A returned error is logged and swallowed;
// it never reaches the scheduler worker.
type Handler func(Event) error

// Sink is a local publish/subscribe fanout. Delivery is synchronous on the
// emitting goroutine, in subscription order. Handler panics are recovered.
type Sink struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewSink() *Sink {
	return &Sink{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for events of the given type.
func (s *Sink) Subscribe(eventType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = append(s.handlers[eventType], h)
}

// Emit delivers e to every subscriber of its type.
func (s *Sink) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers[e.Type]))
	copy(handlers, s.handlers[e.Type])
	s.mu.RUnlock()

	for _, h := range handlers {
		if err := safeCall(h, e); err != nil {
			log.Printf("Event handler for %s failed: %v", e.Type, err)
		}
	}
}

func safeCall(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(e)
}
