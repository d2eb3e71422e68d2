// Package session keeps each LINE user's recent conversation with the bot.
// Histories expire after a period of inactivity and never grow past a fixed
// number of messages.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/jiujiugas/gasops/internal/llm"
)

// Store maps user ids to message histories. Safe for concurrent use.
type Store struct {
	cache *ttlcache.Cache[string, []llm.Message]
	max   int
	// mu makes read-modify-write of one history atomic.
	mu sync.Mutex
}

// New returns a Store whose histories live ttl past their last use and hold
// at most maxHistory messages. It panics on non-positive arguments.
func New(ttl time.Duration, maxHistory int) *Store {
	if ttl <= 0 {
		panic("session: ttl must be positive")
	}
	if maxHistory <= 0 {
		panic("session: maxHistory must be positive")
	}
	cache := ttlcache.New(ttlcache.WithTTL[string, []llm.Message](ttl))
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, []llm.Message]) {
		if reason == ttlcache.EvictionReasonExpired {
			slog.Debug("session expired", "user", item.Key(), "messages", len(item.Value()))
		}
	})
	return &Store{cache: cache, max: maxHistory}
}

// History returns a copy of the user's messages, oldest first. Reading a
// history extends its lifetime.
func (s *Store) History(userID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.cache.Get(userID)
	if item == nil {
		return nil
	}
	return append([]llm.Message(nil), item.Value()...)
}

// Append adds msgs to the user's history and drops the oldest messages
// beyond the limit.
func (s *Store) Append(userID string, msgs ...llm.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var hist []llm.Message
	if item := s.cache.Get(userID); item != nil {
		hist = item.Value()
	}
	next := make([]llm.Message, 0, len(hist)+len(msgs))
	next = append(next, hist...)
	next = append(next, msgs...)
	if over := len(next) - s.max; over > 0 {
		next = next[over:]
	}
	s.cache.Set(userID, next, ttlcache.DefaultTTL)
}

// Clear forgets the user's history.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(userID)
}

// Len returns the number of live histories.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Run evicts expired histories in the background until ctx is done.
func (s *Store) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.cache.Start()
	}()
	<-ctx.Done()
	s.cache.Stop()
	<-done
}
