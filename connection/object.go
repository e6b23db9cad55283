package connection

// Object is implemented by every local proxy for a remote object.
type Object interface {
	Owner() *ChannelOwner
}

// ObjectFactory constructs the typed proxy for a newly announced remote
// object. scope is the scope the create event targeted. Factories run on the
// dispatch goroutine and must not block.
type ObjectFactory func(scope *Scope, typ, guid string, initializer map[string]any) Object

// ChannelOwner is the base every proxy builds on: the guid, the channel, the
// initializer snapshot and the owning scope. It is also the emitter server
// events for the guid are re-emitted on. Those handlers run on the
// connection's dispatch goroutine, so a handler must not issue a request
// synchronously (the response could never be dispatched); spawn a goroutine
// for that.
type ChannelOwner struct {
	*EventEmitter

	conn        *Connection
	scope       *Scope
	typ         string
	guid        string
	initializer map[string]any
	channel     *Channel
}

// NewChannelOwner builds the base handle under the given scope. When isScope
// is true the object anchors a child scope: every object the remote side
// creates beneath it lives and dies with this one.
func NewChannelOwner(scope *Scope, typ, guid string, initializer map[string]any, isScope bool) *ChannelOwner {
	if isScope {
		scope = scope.CreateChild(guid)
	}
	o := &ChannelOwner{
		EventEmitter: NewEventEmitter(),
		conn:         scope.conn,
		scope:        scope,
		typ:          typ,
		guid:         guid,
		initializer:  initializer,
	}
	o.channel = &Channel{conn: scope.conn, guid: guid, owner: o}
	return o
}

func (o *ChannelOwner) Owner() *ChannelOwner { return o }

func (o *ChannelOwner) Guid() string { return o.guid }

func (o *ChannelOwner) Type() string { return o.typ }

func (o *ChannelOwner) Channel() *Channel { return o.channel }

func (o *ChannelOwner) Scope() *Scope { return o.scope }

func (o *ChannelOwner) Connection() *Connection { return o.conn }

// Initializer returns the state the remote side attached to the create
// event. Treat it as read-only; later changes arrive as events.
func (o *ChannelOwner) Initializer() map[string]any { return o.initializer }

type genericObject struct {
	*ChannelOwner
}

// NewGenericObject is the fallback constructor: unknown remote types degrade
// to an untyped handle instead of failing the create event, so protocol
// growth on the driver side doesn't break older clients.
func NewGenericObject(scope *Scope, typ, guid string, initializer map[string]any) Object {
	return &genericObject{ChannelOwner: NewChannelOwner(scope, typ, guid, initializer, false)}
}
