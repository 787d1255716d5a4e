package presence

import (
	"sync"

	"duochat/event"
)

// RoomKey derives the stable identifier for a two-party conversation:
// the ids ordered lexicographically and joined with an underscore, so
// RoomKey(a, b) == RoomKey(b, a).
func RoomKey(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

// Router tracks which channels have a conversation open. Membership only
// scopes typing-indicator delivery; message delivery goes straight to the
// receiver's registry entry and ignores rooms.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[event.Channel]struct{}
	joined map[event.Channel]map[string]struct{}
}

func NewRouter() *Router {
	return &Router{
		rooms:  make(map[string]map[event.Channel]struct{}),
		joined: make(map[event.Channel]map[string]struct{}),
	}
}

func (rt *Router) Join(ch event.Channel, key string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	members, ok := rt.rooms[key]
	if !ok {
		members = make(map[event.Channel]struct{})
		rt.rooms[key] = members
	}
	members[ch] = struct{}{}

	keys, ok := rt.joined[ch]
	if !ok {
		keys = make(map[string]struct{})
		rt.joined[ch] = keys
	}
	keys[key] = struct{}{}
}

func (rt *Router) Leave(ch event.Channel, key string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.leaveLocked(ch, key)
}

// Drop removes a channel from every room it joined. Called when the
// channel closes.
func (rt *Router) Drop(ch event.Channel) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for key := range rt.joined[ch] {
		rt.leaveLocked(ch, key)
	}
}

func (rt *Router) leaveLocked(ch event.Channel, key string) {
	if members, ok := rt.rooms[key]; ok {
		delete(members, ch)
		if len(members) == 0 {
			delete(rt.rooms, key)
		}
	}
	if keys, ok := rt.joined[ch]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(rt.joined, ch)
		}
	}
}

// Members returns a snapshot of the channels joined to a room.
func (rt *Router) Members(key string) []event.Channel {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	members := rt.rooms[key]
	if len(members) == 0 {
		return nil
	}
	channels := make([]event.Channel, 0, len(members))
	for ch := range members {
		channels = append(channels, ch)
	}
	return channels
}
