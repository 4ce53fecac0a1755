// Package session holds the client's authentication session: the single
// source of truth for whether the visitor is signed in.
//
// A Service is constructed once at start-up and passed to every consumer
// (callback router, onboarding wizard, realtime client, badge sync). It
// persists the token/user pair through a Store, reports identity events to
// an analytics.Emitter, and owns the forced-logout path the API client
// calls when a bearer token is rejected.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/exmate/exmate/internal/client/analytics"
	"github.com/exmate/exmate/internal/client/client"
	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/ui"
	"github.com/exmate/exmate/internal/logging"
)

const maxRetired = 16

var (
	ErrInvalidSession   = errors.New("invalid session: token and user are required")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// UnauthorizedRegistrar is the API client side of the forced-logout path.
type UnauthorizedRegistrar interface {
	OnUnauthorized(fn client.UnauthorizedFunc) bool
}

type subscriber struct {
	id uint64
	fn func(models.Session)
}

type Service struct {
	store   Store
	emitter analytics.Emitter
	nav     ui.Navigator
	log     logging.Logger

	mu    sync.RWMutex
	token string
	user  *models.UserProfile
	// retired holds the most recent tokens ended by Login, Logout or a
	// forced logout; late rejections of them are ignored.
	retired []string

	subMu   sync.Mutex
	subs    []subscriber
	nextSub uint64

	initOnce sync.Once
}

func NewService(store Store, emitter analytics.Emitter, nav ui.Navigator, log logging.Logger) *Service {
	if emitter == nil {
		emitter = analytics.Nop{}
	}
	return &Service{
		store:   store,
		emitter: emitter,
		nav:     nav,
		log:     log.With("component", "session"),
	}
}

// Init restores the persisted session and registers ForceLogout as the
// API client's unauthorized hook. Only the first call does anything.
func (s *Service) Init(ctx context.Context, hooks UnauthorizedRegistrar) (restored bool, err error) {
	s.initOnce.Do(func() {
		restored, err = s.Restore(ctx)
		if hooks != nil && !hooks.OnUnauthorized(s.ForceLogout) {
			s.log.Warn(ctx, "unauthorized hook was already registered")
		}
	})
	return restored, err
}

// Restore loads the persisted pair. Both halves must be present and the
// profile must decode; anything less leaves the session anonymous.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	token, raw, err := s.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if token == "" || len(raw) == 0 {
		if token != "" || len(raw) != 0 {
			s.log.Warn(ctx, "ignoring incomplete persisted session", "has_token", token != "", "has_user", len(raw) != 0)
		}
		return false, nil
	}

	res := models.DecodeUser(string(raw))
	if !res.OK() {
		s.log.Warn(ctx, "ignoring corrupt persisted session", "error", res.Err)
		return false, nil
	}

	s.mu.Lock()
	s.token, s.user = token, res.User
	s.mu.Unlock()

	s.log.Info(ctx, "session restored", "user_id", res.User.ID)
	s.publish()
	s.emit(ctx, func() { s.emitter.Identify(ctx, string(res.User.ID), res.User.Traits()) })
	return true, nil
}

// Login replaces whatever was persisted with the new pair and makes it the
// current session. Identity events are emitted after the transition and
// cannot fail it.
func (s *Service) Login(ctx context.Context, token string, user *models.UserProfile) error {
	if token == "" || user == nil {
		return ErrInvalidSession
	}
	u := user.Clone()

	raw, err := models.EncodeUser(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.Replace(ctx, token, []byte(raw)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	if s.token != token {
		s.retireLocked(s.token)
	}
	s.retired = slices.DeleteFunc(s.retired, func(t string) bool { return t == token })
	s.token, s.user = token, u
	s.mu.Unlock()

	s.log.Info(ctx, "logged in", "user_id", u.ID, "provider", u.ProviderOrDefault())
	s.publish()

	s.emit(ctx, func() { s.emitter.Identify(ctx, string(u.ID), u.Traits()) })
	s.emit(ctx, func() {
		s.emitter.Track(ctx, analytics.EventLogin, map[string]any{
			"method":  u.ProviderOrDefault(),
			"country": u.Country,
			"school":  u.School,
		})
	})
	return nil
}

// Logout clears memory and the store, resets identity tracking, and sends
// the visitor to sign-in. The in-memory session is cleared even when the
// store cannot be.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.retireLocked(s.token)
	s.token, s.user = "", nil
	s.mu.Unlock()

	storeErr := s.store.Clear(ctx)
	if storeErr != nil {
		s.log.Error(ctx, "failed to clear session store", "error", storeErr)
	}

	s.emit(ctx, func() { s.emitter.Reset(ctx) })
	s.log.Info(ctx, "logged out")
	s.publish()
	s.nav.Navigate(ctx, ui.RouteLogin)

	if storeErr != nil {
		return fmt.Errorf("clear session store: %w", storeErr)
	}
	return nil
}

// UpdateUser replaces the cached profile; the token is unchanged.
func (s *Service) UpdateUser(ctx context.Context, user *models.UserProfile) error {
	if user == nil {
		return ErrInvalidSession
	}
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	u := user.Clone()

	raw, err := models.EncodeUser(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.SaveUser(ctx, []byte(raw)); err != nil {
		if errors.Is(err, errNoStoredToken) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("persist user: %w", err)
	}

	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.user = u
	s.mu.Unlock()

	s.publish()
	return nil
}

// ForceLogout is the global failure path for a rejected bearer token. It
// logs out at most once per rejected token, and ignores rejections of a
// token that is already retired or is not the current session's (a late
// response from before the last login or logout).
func (s *Service) ForceLogout(ctx context.Context, token string) {
	s.mu.Lock()
	if slices.Contains(s.retired, token) || (s.token != "" && token != s.token) {
		s.mu.Unlock()
		s.log.Debug(ctx, "ignoring rejection of a superseded token")
		return
	}
	s.retireLocked(token)
	s.mu.Unlock()

	s.log.Warn(ctx, "token rejected by server, forcing logout")
	_ = s.Logout(ctx)
}

func (s *Service) retireLocked(token string) {
	if token == "" || slices.Contains(s.retired, token) {
		return
	}
	s.retired = append(s.retired, token)
	if len(s.retired) > maxRetired {
		s.retired = slices.Delete(s.retired, 0, len(s.retired)-maxRetired)
	}
}

// RequireAuth is the route guard: anonymous visitors are sent to sign-in.
func (s *Service) RequireAuth(ctx context.Context) bool {
	if s.Authenticated() {
		return true
	}
	s.nav.Navigate(ctx, ui.RouteLogin)
	return false
}

// Subscribe registers fn to receive a snapshot after every transition.
// Callbacks run on the goroutine that caused the transition, with no
// session lock held.
func (s *Service) Subscribe(fn func(models.Session)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Service) publish() {
	snap := s.Snapshot()

	s.subMu.Lock()
	fns := make([]func(models.Session), len(s.subs))
	for i, sub := range s.subs {
		fns[i] = sub.fn
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// emit runs an analytics call, containing any panic from the backend.
func (s *Service) emit(ctx context.Context, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error(ctx, "analytics emitter panicked", "panic", p)
		}
	}()
	fn()
}

func (s *Service) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Session{Token: s.token, User: s.user.Clone()}
}

func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Service) User() *models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

func (s *Service) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}
