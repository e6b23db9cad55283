package connection

// Scope is a node in the ownership tree mirroring remote object lifetimes. A
// scope owns the guids created beneath its anchor object while it was
// current, plus the child scopes anchored by scope-creating objects, so local
// lifetime tracks remote lifetime by construction.
//
// All scope state is guarded by the connection's mutex.
type Scope struct {
	conn   *Connection
	guid   string
	parent *Scope

	children []*Scope
	objects  map[string]Object
	disposed bool
}

func (s *Scope) Guid() string { return s.guid }

// CreateChild allocates a child scope anchored at guid and links it into the
// tree. A parent disposed in the meantime yields a child that is born disposed
// and never registered, so a disposal racing with object creation cannot leak
// a live scope.
func (s *Scope) CreateChild(guid string) *Scope {
	child := &Scope{conn: s.conn, guid: guid, parent: s, objects: make(map[string]Object)}
	s.conn.mu.Lock()
	if s.disposed {
		child.disposed = true
	} else {
		s.children = append(s.children, child)
		s.conn.scopes[guid] = child
	}
	s.conn.mu.Unlock()
	return child
}

// CreateRemoteObject instantiates the proxy for a newly announced remote
// object and registers it under this scope. References embedded in the
// initializer are resolved first.
func (s *Scope) CreateRemoteObject(typ, guid string, initializer map[string]any) Object {
	resolved, _ := s.conn.replaceGuidsWithHandles(initializer).(map[string]any)
	obj := s.conn.factory(s, typ, guid, resolved)
	s.conn.registerObject(s, guid, obj)
	return obj
}

// Dispose removes this scope, every descendant scope, and every guid they
// own from the connection. Disposing an already-disposed scope is a no-op.
func (s *Scope) Dispose() {
	s.conn.mu.Lock()
	s.dispose()
	s.conn.mu.Unlock()
}

// dispose runs with conn.mu held. Children are disposed post-order; a child
// skips detaching from a parent that is itself being torn down.
func (s *Scope) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true

	for _, child := range s.children {
		child.dispose()
	}
	s.children = nil

	delete(s.conn.scopes, s.guid)
	delete(s.conn.objects, s.guid)
	for guid := range s.objects {
		delete(s.conn.objects, guid)
	}
	s.objects = make(map[string]Object)

	if s.parent != nil && !s.parent.disposed {
		delete(s.parent.objects, s.guid)
		for i, child := range s.parent.children {
			if child == s {
				s.parent.children = append(s.parent.children[:i], s.parent.children[i+1:]...)
				break
			}
		}
	}
}
