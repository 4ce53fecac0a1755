// Package badge keeps the unread notification count current while the
// visitor is signed in.
package badge

import (
	"context"
	"sync"
	"time"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/logging"
)

const fetchTimeout = 5 * time.Second

type Fetcher interface {
	UnreadCount(ctx context.Context, token string) (int, error)
}

type SessionSource interface {
	Token() string
	Subscribe(fn func(models.Session)) (unsubscribe func())
}

// Sync polls the unread count for the current token. Going anonymous stops
// polling and resets the count at once; results fetched for an earlier
// token are discarded.
type Sync struct {
	api      Fetcher
	interval time.Duration
	log      logging.Logger

	mu          sync.Mutex
	parent      context.Context
	count       int
	token       string
	gen         uint64
	cancel      context.CancelFunc
	onChange    func(int)
	unsubscribe func()

	wg sync.WaitGroup
}

func New(api Fetcher, interval time.Duration, log logging.Logger) *Sync {
	return &Sync{
		api:      api,
		interval: interval,
		log:      log.With("component", "badge"),
		parent:   context.Background(),
	}
}

// OnChange sets the hook called with each new count.
func (s *Sync) OnChange(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Watch follows src until ctx ends or Stop is called.
func (s *Sync) Watch(ctx context.Context, src SessionSource) {
	s.mu.Lock()
	s.parent = ctx
	s.mu.Unlock()

	unsubscribe := src.Subscribe(func(sess models.Session) { s.apply(sess.Token) })
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.apply(src.Token())
}

func (s *Sync) apply(token string) {
	s.mu.Lock()
	if token == s.token {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.token = token

	if token == "" {
		notify := s.setCountLocked(0)
		s.mu.Unlock()
		notify()
		return
	}

	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	gen := s.gen
	s.wg.Add(1)
	s.mu.Unlock()

	go s.poll(ctx, gen, token)
}

func (s *Sync) poll(ctx context.Context, gen uint64, token string) {
	defer s.wg.Done()

	_ = s.fetch(ctx, gen, token)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.fetch(ctx, gen, token)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sync) fetch(ctx context.Context, gen uint64, token string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	n, err := s.api.UnreadCount(fetchCtx, token)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			s.log.Debug(ctx, "unread count fetch failed", "error", err)
		}
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	notify := s.setCountLocked(n)
	s.mu.Unlock()
	notify()
	return nil
}

// Refresh fetches now, outside the polling schedule.
func (s *Sync) Refresh(ctx context.Context) error {
	s.mu.Lock()
	token, gen := s.token, s.gen
	s.mu.Unlock()
	if token == "" {
		return nil
	}
	return s.fetch(ctx, gen, token)
}

func (s *Sync) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Stop unsubscribes and waits for the poller to exit.
func (s *Sync) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()
}

func (s *Sync) setCountLocked(n int) func() {
	if s.count == n {
		return func() {}
	}
	s.count = n
	fn := s.onChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(n) }
}
