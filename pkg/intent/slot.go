package intent

import (
	"context"
	"sync"
	"time"
)

// ChangeFunc is invoked with the record that newly occupies the slot.
type ChangeFunc func(rec *Record)

// Slot wraps a Store with change notification. Subscribers hear about a record
// once, when the slot moves from empty or an older record to a record with an
// id not seen before. Writes made through Put notify immediately; writes made
// by another process are picked up by Watch.
type Slot struct {
	store Store

	mu       sync.Mutex
	subs     map[int]ChangeFunc
	nextSub  int
	lastSeen string
}

// NewSlot creates a slot over store.
func NewSlot(store Store) *Slot {
	return &Slot{
		store: store,
		subs:  make(map[int]ChangeFunc),
	}
}

// Store returns the backing store.
func (s *Slot) Store() Store {
	return s.store
}

// Put overwrites the slot and notifies subscribers.
func (s *Slot) Put(ctx context.Context, rec *Record) error {
	if err := s.store.Put(ctx, rec); err != nil {
		return err
	}
	s.observe(rec)
	return nil
}

// Get returns the current record or nil.
func (s *Slot) Get(ctx context.Context) (*Record, error) {
	return s.store.Get(ctx)
}

// Clear empties the slot.
func (s *Slot) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// ClearIf empties the slot if it still holds the record with id.
func (s *Slot) ClearIf(ctx context.Context, id string) (bool, error) {
	return s.store.ClearIf(ctx, id)
}

// OnChange registers fn and returns a function that removes it.
func (s *Slot) OnChange(fn ChangeFunc) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Prime marks the record currently in the store as already seen, so that Watch
// only reports records written after this call.
func (s *Slot) Prime(ctx context.Context) (*Record, error) {
	rec, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.mu.Lock()
		s.lastSeen = rec.ID
		s.mu.Unlock()
	}
	return rec, nil
}

// Poll reads the store once and notifies subscribers if it holds a new record.
func (s *Slot) Poll(ctx context.Context) error {
	rec, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	if rec != nil {
		s.observe(rec)
	}
	return nil
}

// Watch polls the store every interval until ctx is done. Read errors are
// passed to onErr (if non-nil) and polling continues.
func (s *Slot) Watch(ctx context.Context, interval time.Duration, onErr func(error)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
		}
	}
}

func (s *Slot) observe(rec *Record) {
	s.mu.Lock()
	if rec.ID == s.lastSeen {
		s.mu.Unlock()
		return
	}
	s.lastSeen = rec.ID
	subs := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		cp := *rec
		fn(&cp)
	}
}
