// Package presence tracks which users currently hold open live channels
// and which channels are looking at which conversation.
package presence

import (
	"hash/fnv"
	"sync"

	"duochat/event"
)

const shardCount = 32

// Registry maps user ids to their open live channels. It is sharded by
// user id so connect/disconnect bursts for different users never contend
// on one lock, while mutations for the same user stay linearizable.
type Registry struct {
	shards [shardCount]registryShard
	owners sync.Map // event.Channel -> userID
}

type registryShard struct {
	mu    sync.Mutex
	users map[string]map[event.Channel]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].users = make(map[string]map[event.Channel]struct{})
	}
	return r
}

func (r *Registry) shardFor(userID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.shards[h.Sum32()%shardCount]
}

// Connect registers a channel under a user. Returns true when this is
// the user's first open channel, i.e. the user just came online.
func (r *Registry) Connect(userID string, ch event.Channel) (first bool) {
	r.owners.Store(ch, userID)

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		set = make(map[event.Channel]struct{})
		s.users[userID] = set
	}
	set[ch] = struct{}{}
	return len(set) == 1
}

// Disconnect removes a channel from whichever user owns it. Returns the
// owner and whether that was the user's last channel. Unknown channels
// are a no-op.
func (r *Registry) Disconnect(ch event.Channel) (userID string, last bool) {
	owner, ok := r.owners.LoadAndDelete(ch)
	if !ok {
		return "", false
	}
	userID = owner.(string)

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		return userID, false
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(s.users, userID)
		return userID, true
	}
	return userID, false
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users[userID]) > 0
}

// ChannelsFor returns a snapshot of the user's open channels. An empty
// result means deliver nothing; there is no queuing for offline users.
func (r *Registry) ChannelsFor(userID string) []event.Channel {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.users[userID]
	if len(set) == 0 {
		return nil
	}
	channels := make([]event.Channel, 0, len(set))
	for ch := range set {
		channels = append(channels, ch)
	}
	return channels
}
