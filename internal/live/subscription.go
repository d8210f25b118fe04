package live

// Subscription delivers coalesced snapshots of one subject. The channel
// carries the most recent snapshot only: a slow consumer observes the
// latest state, never a backlog. Cancel stops delivery and closes C; no
// snapshot is delivered after Cancel returns.
type Subscription struct {
	C <-chan Snapshot

	ch       chan Snapshot
	cancel   func(*Subscription)
	canceled bool
}

// Subscribe attaches to a subject and immediately delivers its current
// snapshot. Subjects not yet seen deliver an empty snapshot first.
func (r *Reducer) Subscribe(name string) *Subscription {
	s := r.subjectFor(name)
	sub := &Subscription{ch: make(chan Snapshot, 1)}
	sub.C = sub.ch
	sub.cancel = func(su *Subscription) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if su.canceled {
			return
		}
		su.canceled = true
		delete(s.subs, su)
		close(su.ch)
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.push(r.snapshotLocked(s))
	s.mu.Unlock()
	return sub
}

// Cancel detaches the subscription and releases its buffer. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.cancel(s)
}

// push coalesces: an undelivered snapshot is dropped in favor of the new
// one. Always called with the subject lock held, so it never races Cancel.
func (s *Subscription) push(snap Snapshot) {
	if s.canceled {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}
