// Package store implements the signal store (§4.5): a bounded, newest-first
// buffer of emitted signals with subscribe/notify and a transient
// high-strength "toast" fan-out. The buffer and the toast set are each
// guarded by their own state under one mutex; subscriber callbacks run
// after the lock is released so a callback can safely call back into the
// store without deadlocking (grounded on the teacher's
// Broadcaster.Broadcast, which releases its lock before fanning out, and
// ReplayBuffer's mutex-guarded circular-buffer shape).
package store

import (
	"sync"
	"time"

	"chanwatch/internal/model"
)

// DefaultCapacity is the signal buffer's default bound (§4.5, §6).
const DefaultCapacity = 500

// ToastCapacity is the toast set's default bound (§4.5, §6).
const ToastCapacity = 5

// ToastLifetime is how long a toast survives before auto-expiry (§4.5, §6).
const ToastLifetime = 8 * time.Second

// ToastThreshold is the minimum strength that enters the toast set (§4.5).
const ToastThreshold = 50.0

// Subscriber is invoked with the full newest-first snapshot after a mutation.
type Subscriber func(snapshot []model.Signal)

// Unsubscribe releases a subscription. Calling it more than once is safe.
type Unsubscribe func()

type subscription struct {
	id int64
	cb Subscriber
}

// Toast is a transient, high-strength signal notification.
type Toast struct {
	Signal       model.Signal
	InsertedAtMS int64
}

type toastEntry struct {
	toast Toast
	timer *time.Timer
}

// Store is the signal store. The zero value is not usable; use New.
type Store struct {
	mu       sync.Mutex
	capacity int
	buf      []model.Signal // newest-first

	subs      []*subscription
	nextSubID int64

	toastCapacity int
	toastLifetime time.Duration
	toasts        []toastEntry // newest-first
	onToastExpire func()       // test hook; nil in production

	now func() time.Time
}

// New creates a Store with the given buffer capacity, toast capacity, and
// toast lifetime. Zero/negative values fall back to the spec defaults.
func New(capacity, toastCapacity int, toastLifetime time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if toastCapacity <= 0 {
		toastCapacity = ToastCapacity
	}
	if toastLifetime <= 0 {
		toastLifetime = ToastLifetime
	}
	return &Store{
		capacity:      capacity,
		toastCapacity: toastCapacity,
		toastLifetime: toastLifetime,
		now:           time.Now,
	}
}

// Subscribe registers cb to be called with the full snapshot after every
// mutation (AddBatch, Clear). Callbacks fire in FIFO subscribe order. The
// returned Unsubscribe removes the registration.
func (s *Store) Subscribe(cb Subscriber) Unsubscribe {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	sub := &subscription{id: id, cb: cb}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			for i, have := range s.subs {
				if have.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// AddBatch inserts signals atomically at the head in caller order, truncates
// to capacity, schedules any strength>=50 signal as a toast, and notifies
// subscribers exactly once with the resulting full snapshot (§4.5).
func (s *Store) AddBatch(signals []model.Signal) {
	if len(signals) == 0 {
		return
	}
	s.mu.Lock()

	newBuf := make([]model.Signal, 0, len(signals)+len(s.buf))
	newBuf = append(newBuf, signals...)
	newBuf = append(newBuf, s.buf...)
	if len(newBuf) > s.capacity {
		newBuf = newBuf[:s.capacity]
	}
	s.buf = newBuf

	for _, sig := range signals {
		if sig.Strength >= ToastThreshold {
			s.insertToastLocked(sig)
		}
	}

	snapshot := s.snapshotLocked()
	subsCopy := s.subsSnapshotLocked()
	s.mu.Unlock()

	notify(subsCopy, snapshot)
}

// Clear empties the signal buffer (not the toast set) and notifies
// subscribers with the now-empty snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.buf = nil
	subsCopy := s.subsSnapshotLocked()
	s.mu.Unlock()

	notify(subsCopy, nil)
}

// Snapshot returns a copy of the current newest-first buffer.
func (s *Store) Snapshot() []model.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []model.Signal {
	out := make([]model.Signal, len(s.buf))
	copy(out, s.buf)
	return out
}

func (s *Store) subsSnapshotLocked() []*subscription {
	out := make([]*subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func notify(subs []*subscription, snapshot []model.Signal) {
	for _, sub := range subs {
		sub.cb(snapshot)
	}
}

// insertToastLocked adds sig to the toast set (newest-first, capacity-bound,
// overflow drops oldest) and schedules its expiry. Must be called with s.mu
// held.
func (s *Store) insertToastLocked(sig model.Signal) {
	entry := toastEntry{toast: Toast{Signal: sig, InsertedAtMS: s.now().UnixMilli()}}

	id := sig.ID
	entry.timer = time.AfterFunc(s.toastLifetime, func() {
		if hook := s.removeToast(id); hook != nil {
			hook()
		}
	})

	s.toasts = append([]toastEntry{entry}, s.toasts...)
	if len(s.toasts) > s.toastCapacity {
		dropped := s.toasts[s.toastCapacity:]
		s.toasts = s.toasts[:s.toastCapacity]
		for _, d := range dropped {
			d.timer.Stop()
		}
	}
}

// Toasts returns a newest-first snapshot of the active toast set.
func (s *Store) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, len(s.toasts))
	for i, e := range s.toasts {
		out[i] = e.toast
	}
	return out
}

// DismissToast removes a toast by signal id immediately, cancelling its
// expiry timer. Returns false if no such toast was active.
func (s *Store) DismissToast(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.toasts {
		if e.toast.Signal.ID == id {
			e.timer.Stop()
			s.toasts = append(s.toasts[:i:i], s.toasts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) removeToast(id string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.toasts {
		if e.toast.Signal.ID == id {
			s.toasts = append(s.toasts[:i:i], s.toasts[i+1:]...)
			return s.onToastExpire
		}
	}
	return nil
}
