package connection

import "sync"

// Handler receives the payload of an emitted event.
type Handler func(payload any)

// Listener identifies a registered handler so it can be removed later. Go
// funcs aren't comparable, so registration hands back an opaque token.
type Listener struct {
	event string
	id    uint64
}

// EventEmitter is a goroutine-safe publish-subscribe primitive. Handlers run
// in registration order. Emit snapshots the handler list under the lock and
// invokes handlers outside it, so a handler may register or remove listeners
// without deadlocking.
type EventEmitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]*listener
}

type listener struct {
	id      uint64
	handler Handler
	once    bool
	fired   bool
}

func NewEventEmitter() *EventEmitter {
	return &EventEmitter{listeners: make(map[string][]*listener)}
}

// On registers a handler that fires on every emit of event until removed.
func (e *EventEmitter) On(event string, h Handler) Listener {
	return e.addListener(event, h, false)
}

// Once registers a handler that fires on the next emit of event and then
// deregisters itself. It fires exactly once even when emits race.
func (e *EventEmitter) Once(event string, h Handler) Listener {
	return e.addListener(event, h, true)
}

func (e *EventEmitter) addListener(event string, h Handler, once bool) Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	l := &listener{id: e.nextID, handler: h, once: once}
	e.listeners[event] = append(e.listeners[event], l)
	return Listener{event: event, id: l.id}
}

// RemoveListener deregisters the listener. Removing a listener that is
// already gone is a no-op.
func (e *EventEmitter) RemoveListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls := e.listeners[l.event]
	for i, candidate := range ls {
		if candidate.id == l.id {
			e.listeners[l.event] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler registered for event, in registration order. A
// once-handler is claimed under the lock before invocation, so concurrent
// emits cannot both fire it.
func (e *EventEmitter) Emit(event string, payload any) {
	e.mu.Lock()
	ls := e.listeners[event]
	run := make([]Handler, 0, len(ls))
	var remaining []*listener
	trimmed := false
	for _, l := range ls {
		if l.once {
			trimmed = true
			if l.fired {
				continue
			}
			l.fired = true
			run = append(run, l.handler)
			continue
		}
		run = append(run, l.handler)
		remaining = append(remaining, l)
	}
	if trimmed {
		if len(remaining) == 0 {
			delete(e.listeners, event)
		} else {
			e.listeners[event] = remaining
		}
	}
	e.mu.Unlock()

	for _, h := range run {
		h(payload)
	}
}

// ListenerCount reports the number of live listeners for event.
func (e *EventEmitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}
