package application

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/metrics"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/google/uuid"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterRead   Filter = "read"
)

type ChangeKind string

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRead     ChangeKind = "read"
	ChangeAllRead  ChangeKind = "all_read"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRecount  ChangeKind = "recount"
)

// Change is emitted to subscribers after every applied mutation. Version increases
// by one per change, so a gap means the subscriber's buffer overflowed.
type Change struct {
	Kind        ChangeKind
	ID          string
	UnreadCount int
	Version     uint64
}

type entry struct {
	n   domain.Notification
	seq uint64
}

// before is the total order of the inbox: domain.Less, then insertion sequence.
func before(a, b *entry) bool {
	if domain.Less(&a.n, &b.n) {
		return true
	}
	if domain.Less(&b.n, &a.n) {
		return false
	}
	return a.seq < b.seq
}

// Store is the single owner of the inbox state. Every mutation is applied under one
// lock, so upserts from the transport, snapshot merges and user intents are
// serialized in submission order. The store performs no I/O.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*entry
	ordered    []*entry
	tombstones map[string]time.Time
	unread     int
	seq        uint64
	version    uint64
	subs       map[*Subscription]struct{}
	closed     bool

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type StoreOption func(*Store)

// WithClock sets the clock used to stamp records that arrive without createdAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byID:       make(map[string]*entry),
		tombstones: make(map[string]time.Time),
		subs:       make(map[*Subscription]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger).With(logger.Component("inbox.store"))
	return s
}

// Upsert inserts an unseen notification or merges a seen one. A merge replaces the
// display fields but keeps the local status unless the incoming record is strictly
// newer by CreatedAt, so a stale snapshot never turns a locally read notification
// back to unread. It reports whether the unread count changed.
func (s *Store) Upsert(n domain.Notification) (bool, error) {
	if err := n.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, nil
	}

	if removedAt, ok := s.tombstones[n.ID]; ok {
		if n.CreatedAt.IsZero() || !newer(n.CreatedAt, removedAt) {
			return false, nil
		}
		delete(s.tombstones, n.ID)
	}

	prevUnread := s.unread

	e, seen := s.byID[n.ID]
	if !seen {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = s.now().UTC()
		}
		s.seq++
		e = &entry{n: n, seq: s.seq}
		s.byID[n.ID] = e
		s.insert(e)
		if n.IsUnread() {
			s.unread++
		}
		s.emit(ChangeInserted, n.ID)
		return s.unread != prevUnread, nil
	}

	merged := n
	merged.Status = e.n.Status
	merged.CreatedAt = e.n.CreatedAt
	if !n.CreatedAt.IsZero() && newer(n.CreatedAt, e.n.CreatedAt) {
		merged.Status = n.Status
		merged.CreatedAt = n.CreatedAt
	}
	if merged.RecipientID == uuid.Nil {
		merged.RecipientID = e.n.RecipientID
	}

	if sameNotification(&e.n, &merged) {
		return false, nil
	}

	switch {
	case e.n.IsUnread() && !merged.IsUnread():
		s.unread--
	case !e.n.IsUnread() && merged.IsUnread():
		s.unread++
	}

	if !merged.CreatedAt.Equal(e.n.CreatedAt) || merged.Priority.Rank() != e.n.Priority.Rank() {
		s.detach(e)
		e.n = merged
		s.insert(e)
	} else {
		e.n = merged
	}
	s.emit(ChangeUpdated, n.ID)
	return s.unread != prevUnread, nil
}

// MarkRead is idempotent. It reports whether the notification went from UNREAD to READ.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	e, ok := s.byID[id]
	if !ok || !e.n.IsUnread() {
		return false
	}
	e.n.Status = domain.StatusRead
	s.unread--
	s.emit(ChangeRead, id)
	return true
}

// MarkAllRead marks every notification READ in one step and returns the IDs that changed.
func (s *Store) MarkAllRead() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	var changed []string
	for _, e := range s.ordered {
		if e.n.IsUnread() {
			e.n.Status = domain.StatusRead
			changed = append(changed, e.n.ID)
		}
	}
	s.unread = 0
	if len(changed) > 0 {
		s.emit(ChangeAllRead, "")
	}
	return changed
}

// Remove deletes a notification and leaves a tombstone so that a stale record for
// the same ID does not bring it back.
func (s *Store) Remove(id string) (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.Notification{}, false
	}
	e, ok := s.byID[id]
	if !ok {
		return domain.Notification{}, false
	}
	s.detach(e)
	delete(s.byID, id)
	s.tombstones[id] = e.n.CreatedAt
	if e.n.IsUnread() {
		s.unread--
	}
	s.emit(ChangeRemoved, id)
	return e.n, true
}

// Forget drops the tombstone for id so the next snapshot may restore it.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tombstones, id)
}

// List returns copies of the notifications matching filter in display order.
func (s *Store) List(filter Filter) []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, 0, len(s.ordered))
	for _, e := range s.ordered {
		switch filter {
		case FilterUnread:
			if !e.n.IsUnread() {
				continue
			}
		case FilterRead:
			if e.n.IsUnread() {
				continue
			}
		}
		out = append(out, e.n)
	}
	return out
}

// Get returns a copy of the notification with id, if present.
func (s *Store) Get(id string) (domain.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return domain.Notification{}, false
	}
	return e.n, true
}

// Len is the number of notifications held, tombstones excluded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

// UnreadCount returns the maintained counter without scanning.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Recount rescans every entity and corrects the maintained counter if it drifted.
func (s *Store) Recount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.ordered {
		if e.n.IsUnread() {
			count++
		}
	}
	if count != s.unread {
		s.logger.Warn("unread counter drift corrected",
			slog.Int("maintained", s.unread), slog.Int("scanned", count))
		s.unread = count
		s.emit(ChangeRecount, "")
	}
	return count
}

// Subscribe registers an observer. Changes that do not fit in buffer are dropped
// for that subscriber only; the store never blocks on a slow reader.
// A negative buffer is treated as zero.
func (s *Store) Subscribe(buffer int) *Subscription {
	ch := make(chan Change, max(buffer, 0))
	sub := &Subscription{C: ch, ch: ch, store: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Close tears the store down: subscriptions are closed and later mutations are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// insert and detach must be called with mu held.
func (s *Store) insert(e *entry) {
	idx := sort.Search(len(s.ordered), func(i int) bool { return before(e, s.ordered[i]) })
	s.ordered = slices.Insert(s.ordered, idx, e)
}

func (s *Store) detach(e *entry) {
	if idx := slices.Index(s.ordered, e); idx >= 0 {
		s.ordered = slices.Delete(s.ordered, idx, idx+1)
	}
}

func (s *Store) emit(kind ChangeKind, id string) {
	s.version++
	s.metrics.StoreMutation(string(kind))
	s.metrics.SetUnread(s.unread)

	c := Change{Kind: kind, ID: id, UnreadCount: s.unread, Version: s.version}
	for sub := range s.subs {
		select {
		case sub.ch <- c:
		default:
			s.logger.Debug("subscriber buffer full, change dropped", slog.Uint64("version", c.Version))
		}
	}
}

// newer compares at storage precision: a push may carry more digits than the
// same record read back from the list endpoint.
func newer(a, b time.Time) bool {
	return a.Truncate(domain.TimestampPrecision).After(b.Truncate(domain.TimestampPrecision))
}

func sameNotification(a, b *domain.Notification) bool {
	return a.ID == b.ID &&
		a.RecipientID == b.RecipientID &&
		a.Title == b.Title &&
		a.Message == b.Message &&
		a.Type == b.Type &&
		a.Priority == b.Priority &&
		a.Status == b.Status &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.SourceID == b.SourceID &&
		a.SourceType == b.SourceType &&
		a.ActionLink == b.ActionLink
}

// Subscription delivers store changes on C until Close is called or the store is closed.
type Subscription struct {
	C     <-chan Change
	ch    chan Change
	store *Store
	once  sync.Once
}

func (sub *Subscription) Close() {
	sub.once.Do(func() { sub.store.unsubscribe(sub) })
}
