package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedFetcher serves entities with limit/offset paging, failing at failAt if set.
type pagedFetcher struct {
	mu       sync.Mutex
	entities []json.RawMessage
	failAt   int
	calls    atomic.Int32
	gate     chan struct{}
	ignore   bool // ignore paging and return everything
	clamp    int  // largest limit honored, like the list endpoint
	limits   []int
}

func (f *pagedFetcher) Fetch(ctx context.Context, limit, offset int) ([]json.RawMessage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.clamp > 0 {
		limit = min(limit, f.clamp)
	}
	if f.failAt > 0 && offset >= f.failAt {
		return nil, errors.New("connection reset")
	}
	if f.ignore {
		return f.entities, nil
	}
	if offset >= len(f.entities) {
		return nil, nil
	}
	end := min(offset+limit, len(f.entities))
	return f.entities[offset:end], nil
}

func rawNotification(id, status string, minute int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"title":"t","message":"m","type":"INFO","status":%q,"createdAt":"2024-05-01T10:%02d:00Z"}`,
		id, status, minute))
}

func newTestLoader(s *Store, f Fetcher, pageSize int) *SnapshotLoader {
	return NewSnapshotLoader(s, f, SnapshotConfig{PageSize: pageSize}, WithSnapshotLogger(logger.Discard()))
}

func TestSnapshotLoader_LoadsAllPages(t *testing.T) {
	f := &pagedFetcher{}
	for i := 0; i < 7; i++ {
		status := "UNREAD"
		if i%2 == 0 {
			status = "READ"
		}
		f.entities = append(f.entities, rawNotification(fmt.Sprintf("n%d", i), status, i))
	}
	s := newTestStore()

	res, err := newTestLoader(s, f, 3).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 7, res.Fetched)
	assert.Equal(t, 7, res.Applied)
	assert.Equal(t, 3, res.UnreadCount)
	assert.Equal(t, 7, s.Len())
	assert.Equal(t, 3, s.UnreadCount())
	assert.Equal(t, []string{"n6", "n5", "n4", "n3", "n2", "n1", "n0"}, ids(s.List(FilterAll)))
}

func TestSnapshotLoader_ExactMultipleEndsOnEmptyPage(t *testing.T) {
	f := &pagedFetcher{entities: []json.RawMessage{
		rawNotification("a", "UNREAD", 1),
		rawNotification("b", "UNREAD", 2),
	}}
	res, err := newTestLoader(newTestStore(), f, 2).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestSnapshotLoader_ServerIgnoringPagingStops(t *testing.T) {
	f := &pagedFetcher{ignore: true, entities: []json.RawMessage{
		rawNotification("a", "UNREAD", 1),
		rawNotification("b", "UNREAD", 2),
	}}
	s := newTestStore()
	res, err := newTestLoader(s, f, 2).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, s.Len())
}

func TestSnapshotLoader_SkipsMalformedEntries(t *testing.T) {
	f := &pagedFetcher{entities: []json.RawMessage{
		rawNotification("a", "UNREAD", 1),
		json.RawMessage(`{"title":"missing id"}`),
		json.RawMessage(`{"id":"c","status":"ARCHIVED"}`),
		json.RawMessage(`[]`),
	}}
	s := newTestStore()
	res, err := newTestLoader(s, f, 50).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rejected)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, []string{"a"}, ids(s.List(FilterAll)))
}

func TestSnapshotLoader_MalformedFullPageDoesNotEndPaging(t *testing.T) {
	f := &pagedFetcher{entities: []json.RawMessage{
		json.RawMessage(`{"title":"missing id"}`),
		json.RawMessage(`[]`),
		rawNotification("a", "UNREAD", 1),
		rawNotification("b", "READ", 2),
	}}
	s := newTestStore()
	res, err := newTestLoader(s, f, 2).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, []string{"b", "a"}, ids(s.List(FilterAll)))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestSnapshotLoader_RepeatedMalformedPageStops(t *testing.T) {
	f := &pagedFetcher{ignore: true, entities: []json.RawMessage{
		json.RawMessage(`{"title":"missing id"}`),
		json.RawMessage(`[]`),
	}}
	res, err := newTestLoader(newTestStore(), f, 2).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 4, res.Rejected)
}

func TestSnapshotLoader_PageSizeCappedAtServerLimit(t *testing.T) {
	f := &pagedFetcher{clamp: 200}
	for i := 0; i < 450; i++ {
		f.entities = append(f.entities, rawNotification(fmt.Sprintf("n%03d", i), "UNREAD", i%60))
	}
	s := newTestStore()

	res, err := newTestLoader(s, f, 500).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 450, s.Len())
	assert.Equal(t, 450, res.UnreadCount)
	assert.Equal(t, []int{200, 200, 200}, f.limits)
}

// A snapshot taken before the user read an item must not reopen it.
func TestSnapshotLoader_DoesNotResurrectReadItems(t *testing.T) {
	s := newTestStore()
	_, err := s.Upsert(domain.Notification{ID: "a", Status: domain.StatusUnread, CreatedAt: mustTime(t, "2024-05-01T10:01:00Z")})
	require.NoError(t, err)
	require.True(t, s.MarkRead("a"))

	f := &pagedFetcher{entities: []json.RawMessage{rawNotification("a", "UNREAD", 1)}}
	res, err := newTestLoader(s, f, 50).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.UnreadCount)
	got, _ := s.Get("a")
	assert.Equal(t, domain.StatusRead, got.Status)
}

func TestSnapshotLoader_FirstPageFailureLeavesStoreUntouched(t *testing.T) {
	s := newTestStore()
	_, err := s.Upsert(domain.Notification{ID: "keep", Status: domain.StatusUnread, CreatedAt: mustTime(t, "2024-05-01T09:00:00Z")})
	require.NoError(t, err)

	failing := fetcherFunc(func(context.Context, int, int) ([]json.RawMessage, error) {
		return nil, errors.New("503")
	})

	_, err = newTestLoader(s, failing, 50).Load(context.Background())
	var se *domain.SnapshotError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Offset)
	assert.Equal(t, []string{"keep"}, ids(s.List(FilterAll)))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestSnapshotLoader_LaterPageFailureKeepsAppliedPages(t *testing.T) {
	f := &pagedFetcher{failAt: 2, entities: []json.RawMessage{
		rawNotification("a", "UNREAD", 1),
		rawNotification("b", "UNREAD", 2),
		rawNotification("c", "UNREAD", 3),
	}}
	s := newTestStore()
	res, err := newTestLoader(s, f, 2).Load(context.Background())

	var se *domain.SnapshotError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Offset)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 2, s.Len())
}

func TestSnapshotLoader_ConcurrentLoadsShareOneFetch(t *testing.T) {
	f := &pagedFetcher{gate: make(chan struct{}), entities: []json.RawMessage{rawNotification("a", "UNREAD", 1)}}
	l := newTestLoader(newTestStore(), f, 50)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Load(context.Background())
			assert.NoError(t, err)
		}()
	}
	assert.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestSnapshotLoader_RunRefreshesUntilCancelled(t *testing.T) {
	f := &pagedFetcher{entities: []json.RawMessage{rawNotification("a", "UNREAD", 1)}}
	l := NewSnapshotLoader(newTestStore(), f, SnapshotConfig{PageSize: 50, RefreshInterval: 5 * time.Millisecond},
		WithSnapshotLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestSnapshotLoader_RunDisabled(t *testing.T) {
	f := &pagedFetcher{}
	l := NewSnapshotLoader(newTestStore(), f, SnapshotConfig{}, WithSnapshotLogger(logger.Discard()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Run(ctx))
	assert.Equal(t, int32(0), f.calls.Load())
}

type fetcherFunc func(ctx context.Context, limit, offset int) ([]json.RawMessage, error)

func (f fetcherFunc) Fetch(ctx context.Context, limit, offset int) ([]json.RawMessage, error) {
	return f(ctx, limit, offset)
}
