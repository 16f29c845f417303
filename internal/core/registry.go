package core

import (
	"slices"
	"sync"
)

// PresenceChange is emitted when a user's connection count crosses zero.
type PresenceChange struct {
	UserID int64
	Online bool
}

// Registry tracks which connections belong to which user. It is the single
// source of truth for online state.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]map[string]*Client
	byConn map[string]*Client

	// emitMu is held for the whole of Join and Leave, listeners included, so
	// listeners observe transitions in mutation order. Always taken before mu.
	// Work a listener hands back runs after emitMu is released.
	emitMu    sync.Mutex
	listeners []func(PresenceChange) func()
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

// Subscribe registers fn to be called on every online/offline transition.
// Listeners run synchronously and must not call Join or Leave.
func (r *Registry) Subscribe(fn func(PresenceChange)) {
	r.SubscribeAfter(func(ch PresenceChange) func() {
		fn(ch)
		return nil
	})
}

// SubscribeAfter is Subscribe for listeners with slow side effects. fn must
// only touch memory; the func it returns, if any, runs once the transition
// is published and other joins and leaves are no longer held up.
func (r *Registry) SubscribeAfter(fn func(PresenceChange) func()) {
	r.emitMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.emitMu.Unlock()
}

// Join binds c to userID. Joining again with the same user is a no-op;
// joining with a different user returns ErrAlreadyJoined. The returned flag is
// true when this was the user's first connection.
func (r *Registry) Join(c *Client, userID int64) (bool, error) {
	first, after, err := r.join(c, userID)
	runAll(after)
	return first, err
}

func (r *Registry) join(c *Client, userID int64) (first bool, after []func(), err error) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if cur := c.UserID(); cur != 0 {
		r.mu.Unlock()
		if cur != userID {
			return false, nil, ErrAlreadyJoined
		}
		return false, nil, nil
	}

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]*Client)
		r.byUser[userID] = conns
	}
	conns[c.ID] = c
	r.byConn[c.ID] = c
	c.userID.Store(userID)
	first = len(conns) == 1
	r.mu.Unlock()

	if first {
		after = r.emit(PresenceChange{UserID: userID, Online: true})
	}
	return first, after, nil
}

// Leave detaches the connection. It reports the user it belonged to and
// whether that was the user's last connection. ok is false for unknown ids.
func (r *Registry) Leave(connID string) (userID int64, last, ok bool) {
	userID, last, ok, after := r.leave(connID)
	runAll(after)
	return userID, last, ok
}

func (r *Registry) leave(connID string) (userID int64, last, ok bool, after []func()) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	c, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return 0, false, false, nil
	}
	delete(r.byConn, connID)
	userID = c.UserID()
	c.userID.Store(0)

	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		last = true
	}
	r.mu.Unlock()

	if last {
		after = r.emit(PresenceChange{UserID: userID, Online: false})
	}
	return userID, last, true, after
}

func (r *Registry) emit(change PresenceChange) []func() {
	var after []func()
	for _, fn := range r.listeners {
		if f := fn(change); f != nil {
			after = append(after, f)
		}
	}
	return after
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// ConnectionsFor returns the connection ids bound to userID.
func (r *Registry) ConnectionsFor(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clients returns the live clients bound to userID.
func (r *Registry) Clients(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether userID has at least one connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ActiveUsers returns the ids of online users in ascending order.
func (r *Registry) ActiveUsers() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PushTo delivers ev to every connection of userID and returns how many
// accepted it. Slow connections drop the event.
func (r *Registry) PushTo(userID int64, ev Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.byUser[userID] {
		if c.Push(ev) {
			n++
		}
	}
	return n
}

// Broadcast delivers ev to every connection except those of exceptUser.
// Pass 0 to reach everyone.
func (r *Registry) Broadcast(ev Event, exceptUser int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for uid, conns := range r.byUser {
		if uid == exceptUser {
			continue
		}
		for _, c := range conns {
			c.Push(ev)
		}
	}
}
