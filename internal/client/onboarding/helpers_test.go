package onboarding

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exmate/exmate/internal/client/client"
	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/ui"
	"github.com/exmate/exmate/internal/logging"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "exmate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type completeCall struct {
	token, school, country string
}

type fakeAPI struct {
	mu sync.Mutex

	checkFn    func(ctx context.Context, username string) (client.UsernameCheck, error)
	updateFn   func(ctx context.Context, token, username string) (*models.UserProfile, error)
	completeFn func(ctx context.Context, token, school, country string) (*models.UserProfile, error)
	popular    []string
	popularErr error

	checks    []string
	updates   []string
	completes []completeCall
	popularN  int
}

func (f *fakeAPI) CheckUsername(ctx context.Context, username string) (client.UsernameCheck, error) {
	f.mu.Lock()
	f.checks = append(f.checks, username)
	fn := f.checkFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, username)
	}
	return client.UsernameCheck{Available: true, Message: "사용 가능한 닉네임입니다"}, nil
}

func (f *fakeAPI) UpdateUsername(ctx context.Context, token, username string) (*models.UserProfile, error) {
	f.mu.Lock()
	f.updates = append(f.updates, username)
	fn := f.updateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, username)
	}
	return &models.UserProfile{ID: "1", Username: username, OnboardingComplete: models.Bool(false)}, nil
}

func (f *fakeAPI) CompleteRegistration(ctx context.Context, token, school, country string) (*models.UserProfile, error) {
	f.mu.Lock()
	f.completes = append(f.completes, completeCall{token: token, school: school, country: country})
	fn := f.completeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, school, country)
	}
	return &models.UserProfile{
		ID:                 "1",
		Username:           "민수",
		Country:            country,
		School:             school,
		OnboardingComplete: models.Bool(true),
	}, nil
}

func (f *fakeAPI) PopularSchools(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.popularN++
	return f.popular, f.popularErr
}

func (f *fakeAPI) UnreadCount(context.Context, string) (int, error) { return 0, nil }

func (f *fakeAPI) completeCalls() []completeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completeCall(nil), f.completes...)
}

type login struct {
	token string
	user  *models.UserProfile
}

type fakeAuth struct {
	mu     sync.Mutex
	err    error
	logins []login
}

func (a *fakeAuth) Login(_ context.Context, token string, user *models.UserProfile) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logins = append(a.logins, login{token: token, user: user})
	return nil
}

func (a *fakeAuth) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logins)
}

type harness struct {
	db      *sql.DB
	api     *fakeAPI
	auth    *fakeAuth
	states  *StateStore
	history *ui.History
	notices *ui.Notices
	wizard  *Wizard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:      openDB(t),
		api:     &fakeAPI{},
		auth:    &fakeAuth{},
		history: ui.NewHistory(ui.RouteCallback),
		notices: ui.NewNotices(nil),
	}
	h.states = NewStateStore(h.db, logging.NewNop())
	h.wizard = h.newWizard()
	return h
}

// newWizard builds a second wizard over the same store, as after a restart.
func (h *harness) newWizard() *Wizard {
	return NewWizard(h.api, h.auth, h.states, h.history, h.notices, logging.NewNop())
}

func placeholderUser() *models.UserProfile {
	return &models.UserProfile{ID: "1", Username: "kakao_123", Provider: "kakao", FullName: "김민수", OnboardingComplete: models.Bool(false)}
}

func encoded(t *testing.T, u *models.UserProfile) string {
	t.Helper()
	raw, err := models.EncodeUser(u)
	require.NoError(t, err)
	return raw
}
