package presence

import (
	"sort"
	"sync"
)

// Registry maps each user to the set of their live connections. A user is
// present in the map if and only if they have at least one connection.
//
// All mutations and the first/last decision happen under one registry-wide
// lock; the critical sections are O(1) set operations.
type Registry struct {
	mu    sync.Mutex
	conns map[int]map[string]struct{}
	total int
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int]map[string]struct{})}
}

// RegisterConnection adds connID to the user's set and reports whether it is
// the user's first live connection. Registering the same connID twice is a
// no-op that returns false.
func (r *Registry) RegisterConnection(userID int, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}
	r.total++
	return len(set) == 1
}

// DeregisterConnection removes connID and reports whether the user has no
// live connections left, in which case the user's entry is deleted. An
// unknown connection is a no-op that returns false.
func (r *Registry) DeregisterConnection(userID int, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, present := set[connID]; !present {
		return false
	}
	delete(set, connID)
	r.total--
	if len(set) > 0 {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) IsOnline(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

// Connections returns how many live connections the user has.
func (r *Registry) Connections(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID])
}

// OnlineUsers returns the ids of users with live connections, ascending.
func (r *Registry) OnlineUsers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Stats returns the number of online users and open connections.
func (r *Registry) Stats() (users, connections int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns), r.total
}
