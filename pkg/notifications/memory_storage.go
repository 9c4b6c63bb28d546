package notifications

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/cache"
)

var ErrNotificationNotFound = errors.New("notification not found")

const (
	DefaultMaxUsers   = 10000
	DefaultMaxPerUser = 100
)

// MemoryStorage keeps recent notifications in process memory. It holds at
// most maxPerUser notifications per user and maxUsers users; the oldest
// notification and the least recently touched user are dropped first.
type MemoryStorage struct {
	mu         sync.Mutex
	byUser     *cache.LRUCache[uuid.UUID, []Notification]
	maxPerUser int
	now        func() time.Time
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*memoryOptions)

type memoryOptions struct {
	maxUsers   int
	maxPerUser int
}

// WithMaxUsers bounds how many users keep a history.
func WithMaxUsers(n int) MemoryStorageOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.maxUsers = n
		}
	}
}

// WithMaxPerUser bounds how many notifications each user keeps.
func WithMaxPerUser(n int) MemoryStorageOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.maxPerUser = n
		}
	}
}

func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	o := memoryOptions{maxUsers: DefaultMaxUsers, maxPerUser: DefaultMaxPerUser}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStorage{
		byUser:     cache.NewLRUCache[uuid.UUID, []Notification](o.maxUsers),
		maxPerUser: o.maxPerUser,
		now:        time.Now,
	}
}

func (s *MemoryStorage) Create(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, _ := s.byUser.Get(n.UserID)
	list = append(list, n)
	if over := len(list) - s.maxPerUser; over > 0 {
		list = slices.Clone(list[over:])
	}
	s.byUser.Put(n.UserID, list)
	return nil
}

func (s *MemoryStorage) List(_ context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, _ := s.byUser.Get(userID)
	out := make([]Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if opts.OnlyUnread && all[i].Read {
			continue
		}
		out = append(out, all[i])
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID uuid.UUID, ids ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, _ := s.byUser.Get(userID)
	now := s.now()
	for _, id := range ids {
		idx := slices.IndexFunc(list, func(n Notification) bool { return n.ID == id })
		if idx < 0 {
			return ErrNotificationNotFound
		}
		if !list[idx].Read {
			list[idx].MarkAsRead(now)
		}
	}
	return nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, _ := s.byUser.Get(userID)
	count := 0
	for _, n := range list {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
