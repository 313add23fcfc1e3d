package session

import (
	"sync"
	"time"
)

// State holds the current Session and fans snapshots out to subscribers.
//
// Session.Messages is shared between snapshots; the transcript never mutates
// a slice it has handed out, so copies stay consistent without deep cloning.
type State struct {
	mu       sync.RWMutex
	cur      Session
	subs     map[int]chan Session
	nextSub  int
	onChange func(prev, next Session)
}

func NewState() *State {
	return &State{
		cur:  Session{Status: StatusIdle, UpdatedAt: time.Now().UTC()},
		subs: make(map[int]chan Session),
	}
}

// SetChangeHook registers fn to run after every update, outside the lock.
func (s *State) SetChangeHook(fn func(prev, next Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *State) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to the current session and publishes the result.
func (s *State) Update(fn func(*Session)) Session {
	s.mu.Lock()
	prev := s.cur
	next := s.cur
	fn(&next)
	next.UpdatedAt = time.Now().UTC()
	s.cur = next
	for _, ch := range s.subs {
		offer(ch, next)
	}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook(prev, next)
	}
	return next
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one. Slow readers lose intermediate snapshots but always
// see the latest. The returned func unsubscribes and closes the channel.
func (s *State) Subscribe(buffer int) (<-chan Session, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Session, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.cur
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *State) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func offer(ch chan Session, snap Session) {
	select {
	case ch <- snap:
		return
	default:
	}
	// Full: drop the oldest queued snapshot so the newest one fits.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
