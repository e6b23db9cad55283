// Package connection implements the object-graph RPC protocol spoken with a
// driver process over a framed duplex byte stream. A Connection correlates
// request/response pairs, resolves embedded object references in both
// directions, maintains a scope tree mirroring remote object ownership, and
// fans server events out to the right proxy's listeners.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventDisconnected is emitted on the Connection itself when the transport
// ends, after every pending call has been failed.
const EventDisconnected = "disconnected"

// Connection is the single dispatcher for a driver session. Exactly one
// goroutine processes inbound frames in arrival order; any number of
// goroutines may send requests concurrently, each blocking only on its own
// result slot.
type Connection struct {
	*EventEmitter

	log       *zap.SugaredLogger
	transport Transport
	factory   ObjectFactory

	mu        sync.Mutex
	lastID    int
	callbacks map[int]chan callResult
	abandoned map[int]struct{}
	objects   map[string]Object
	scopes    map[string]*Scope
	waiters   map[string][]chan Object
	rootScope *Scope
	closed    bool
	closeErr  error
}

type callResult struct {
	result any
	err    error
}

type Option func(c *Connection)

func WithLogger(l *zap.Logger) Option {
	return func(c *Connection) {
		c.log = l.Named("connection").Sugar()
	}
}

// WithObjectFactory installs the constructor registry used for create events.
// Without it every remote object materializes as a generic handle.
func WithObjectFactory(f ObjectFactory) Option {
	return func(c *Connection) {
		c.factory = f
	}
}

// NewConnection builds a connection over the given transport. It does not
// read anything until Start is called.
func NewConnection(transport Transport, opts ...Option) *Connection {
	c := &Connection{
		EventEmitter: NewEventEmitter(),
		log:          zap.NewNop().Sugar(),
		transport:    transport,
		factory:      NewGenericObject,
		callbacks:    make(map[int]chan callResult),
		abandoned:    make(map[int]struct{}),
		objects:      make(map[string]Object),
		scopes:       make(map[string]*Scope),
		waiters:      make(map[string][]chan Object),
	}
	for _, o := range opts {
		o(c)
	}
	c.rootScope = &Scope{conn: c, guid: "", objects: make(map[string]Object)}
	c.scopes[""] = c.rootScope
	return c
}

// Start begins dispatching inbound frames.
func (c *Connection) Start() {
	c.transport.Start(c.dispatch, c.onTransportClose)
}

// RootScope returns the scope remote root objects are created under.
func (c *Connection) RootScope() *Scope { return c.rootScope }

// Object returns the live proxy for guid, if any.
func (c *Connection) Object(guid string) (Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[guid]
	return obj, ok
}

// WaitForObject returns the proxy for guid, waiting for its create event if
// it hasn't arrived yet.
func (c *Connection) WaitForObject(ctx context.Context, guid string) (Object, error) {
	c.mu.Lock()
	if obj, ok := c.objects[guid]; ok {
		c.mu.Unlock()
		return obj, nil
	}
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	ch := make(chan Object, 1)
	c.waiters[guid] = append(c.waiters[guid], ch)
	c.mu.Unlock()

	select {
	case obj, ok := <-ch:
		if !ok {
			return nil, c.err()
		}
		return obj, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendRequest issues a correlated request addressed to guid and blocks until
// its response arrives or ctx is done. Embedded proxies in params are
// replaced by {guid} placeholders; references in the result are resolved back
// into live proxies. Canceling ctx abandons the call: a late response for its
// id is then discarded, since the remote side has no cancellation concept.
func (c *Connection) SendRequest(ctx context.Context, guid, method string, params map[string]any) (any, error) {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	if guid != "" {
		if _, ok := c.objects[guid]; !ok {
			c.mu.Unlock()
			return nil, fmt.Errorf("sending %q to %q: %w", method, guid, ErrStaleReference)
		}
	}
	c.lastID++
	id := c.lastID
	done := make(chan callResult, 1)
	c.callbacks[id] = done
	c.mu.Unlock()

	wireParams, _ := replaceHandlesWithGuids(params).(map[string]any)
	b, err := json.Marshal(message{ID: id, Guid: guid, Method: method, Params: wireParams})
	if err != nil {
		c.forgetCall(id)
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	c.log.Debugw("sending request", "ID", id, "Guid", guid, "Method", method)
	if err := c.transport.Send(b); err != nil {
		c.forgetCall(id)
		return nil, fmt.Errorf("sending request: %w", err)
	}

	select {
	case res := <-done:
		return res.result, res.err
	case <-ctx.Done():
		c.abandonCall(id)
		return nil, ctx.Err()
	}
}

// Close tears down the connection: pending calls fail with
// ErrConnectionClosed and the transport is closed.
func (c *Connection) Close() error {
	c.teardown(nil)
	return c.transport.Close()
}

func (c *Connection) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrConnectionClosed
}

// forgetCall drops a pending entry for a call that never made it onto the
// wire.
func (c *Connection) forgetCall(id int) {
	c.mu.Lock()
	delete(c.callbacks, id)
	c.mu.Unlock()
}

// abandonCall removes the pending entry for a canceled call and remembers
// the id so its late response is discarded instead of being treated as a
// protocol violation.
func (c *Connection) abandonCall(id int) {
	c.mu.Lock()
	if _, ok := c.callbacks[id]; ok {
		delete(c.callbacks, id)
		c.abandoned[id] = struct{}{}
	}
	c.mu.Unlock()
}

// dispatch is the single entry point for inbound frames. It runs on the
// transport's delivery goroutine.
func (c *Connection) dispatch(raw json.RawMessage) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.abort(&ProtocolError{Reason: fmt.Sprintf("malformed frame: %s", err)})
		return
	}
	if msg.ID != 0 {
		c.dispatchResponse(&msg)
		return
	}
	if msg.Method == createMethod {
		c.dispatchCreate(&msg)
		return
	}
	c.dispatchEvent(&msg)
}

func (c *Connection) dispatchResponse(msg *message) {
	c.mu.Lock()
	done, ok := c.callbacks[msg.ID]
	if !ok {
		if _, abandoned := c.abandoned[msg.ID]; abandoned {
			delete(c.abandoned, msg.ID)
			c.mu.Unlock()
			c.log.Debugw("discarding response for canceled call", "ID", msg.ID)
			return
		}
		c.mu.Unlock()
		c.abort(&ProtocolError{Reason: fmt.Sprintf("response for unknown call id %d", msg.ID)})
		return
	}
	delete(c.callbacks, msg.ID)
	c.mu.Unlock()

	if msg.Error != nil {
		done <- callResult{err: &RemoteError{
			Name:    msg.Error.Name,
			Message: msg.Error.Message,
			Stack:   msg.Error.Stack,
		}}
		return
	}
	done <- callResult{result: c.replaceGuidsWithHandles(msg.Result)}
}

func (c *Connection) dispatchCreate(msg *message) {
	typ, _ := msg.Params["type"].(string)
	newGuid, _ := msg.Params["guid"].(string)
	initializer, _ := msg.Params["initializer"].(map[string]any)
	if newGuid == "" {
		c.abort(&ProtocolError{Reason: "create event without a guid"})
		return
	}
	c.mu.Lock()
	scope, ok := c.scopes[msg.Guid]
	c.mu.Unlock()
	if !ok {
		// Parent scope already disposed; the object would be dead on arrival.
		c.log.Debugw("dropping create for unknown scope", "Scope", msg.Guid, "Guid", newGuid)
		return
	}
	c.log.Debugw("creating remote object", "Type", typ, "Guid", newGuid, "Scope", msg.Guid)
	scope.CreateRemoteObject(typ, newGuid, initializer)
}

func (c *Connection) dispatchEvent(msg *message) {
	c.mu.Lock()
	obj, ok := c.objects[msg.Guid]
	c.mu.Unlock()
	if !ok {
		// Never existed or already disposed; either way the event has no
		// audience. Benign race with disposal.
		c.log.Debugw("dropping event for unknown guid", "Guid", msg.Guid, "Method", msg.Method)
		return
	}
	params := c.replaceGuidsWithHandles(msg.Params)

	// A consumer bug must not halt the dispatch loop.
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("event handler panicked", "Guid", msg.Guid, "Method", msg.Method, "Panic", r)
		}
	}()
	obj.Owner().channel.onMessage(msg.Method, params)
}

// registerObject adds a freshly constructed proxy to the global table and its
// scope's owned set, and wakes anyone waiting on the guid. Registration is
// skipped if the scope was disposed while the factory ran.
func (c *Connection) registerObject(s *Scope, guid string, obj Object) {
	c.mu.Lock()
	if s.disposed {
		// the dropped object may anchor a child scope; tear that down too
		if owner := obj.Owner(); owner.scope != s {
			owner.scope.dispose()
		}
		c.mu.Unlock()
		c.log.Debugw("dropping object for disposed scope", "Guid", guid)
		return
	}
	c.objects[guid] = obj
	s.objects[guid] = obj
	waiters := c.waiters[guid]
	delete(c.waiters, guid)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- obj
	}
}

// abort tears down the connection after a protocol violation.
func (c *Connection) abort(err error) {
	c.log.Errorw("protocol violation, closing connection", "Error", err)
	c.teardown(err)
	c.transport.Close()
}

func (c *Connection) onTransportClose(err error) {
	if err != nil {
		c.log.Debugw("transport closed", "Error", err)
	}
	c.teardown(err)
}

// teardown marks the connection closed, fails every pending call and waiter,
// and emits the synthetic disconnected event. Later sends fail fast without
// touching the transport. Idempotent.
func (c *Connection) teardown(cause error) {
	err := ErrConnectionClosed
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	callbacks := c.callbacks
	c.callbacks = make(map[int]chan callResult)
	waiters := c.waiters
	c.waiters = make(map[string][]chan Object)
	c.mu.Unlock()

	for _, done := range callbacks {
		done <- callResult{err: err}
	}
	for _, chans := range waiters {
		for _, ch := range chans {
			close(ch)
		}
	}
	c.Emit(EventDisconnected, err)
}

// replaceHandlesWithGuids substitutes every embedded proxy or channel with
// its {guid} placeholder, recursing through nested maps and lists.
func replaceHandlesWithGuids(payload any) any {
	switch v := payload.(type) {
	case nil:
		return nil
	case *Channel:
		return map[string]any{"guid": v.guid}
	case Object:
		return map[string]any{"guid": v.Owner().guid}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = replaceHandlesWithGuids(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = replaceHandlesWithGuids(item)
		}
		return out
	default:
		return payload
	}
}

// replaceGuidsWithHandles resolves every {guid} reference into its live
// proxy, recursing through nested maps and lists. A reference is a map whose
// only key is "guid"; one naming an unknown guid resolves to nil, since the
// object may already have been disposed.
func (c *Connection) replaceGuidsWithHandles(payload any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(payload)
}

func (c *Connection) resolveLocked(payload any) any {
	switch v := payload.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = c.resolveLocked(item)
		}
		return out
	case map[string]any:
		if g, ok := v["guid"].(string); ok && len(v) == 1 {
			if obj, ok := c.objects[g]; ok {
				return obj
			}
			return nil
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = c.resolveLocked(item)
		}
		return out
	default:
		return payload
	}
}
