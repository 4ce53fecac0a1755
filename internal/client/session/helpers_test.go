package session

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exmate/exmate/internal/client/client"
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

type event struct {
	kind   string
	name   string
	fields map[string]any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingEmitter) Identify(_ context.Context, userID string, traits map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "identify", name: userID, fields: traits})
}

func (r *recordingEmitter) Track(_ context.Context, name string, props map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "track", name: name, fields: props})
}

func (r *recordingEmitter) Reset(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "reset"})
}

func (r *recordingEmitter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

type panickingEmitter struct{}

func (panickingEmitter) Identify(context.Context, string, map[string]any) { panic("backend down") }
func (panickingEmitter) Track(context.Context, string, map[string]any)    { panic("backend down") }
func (panickingEmitter) Reset(context.Context)                            { panic("backend down") }

type fixture struct {
	db      *sql.DB
	store   *SQLiteStore
	emitter *recordingEmitter
	history *ui.History
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openDB(t)
	f := &fixture{
		db:      db,
		store:   NewSQLiteStore(db),
		emitter: &recordingEmitter{},
		history: ui.NewHistory(ui.RouteHome),
	}
	f.svc = NewService(f.store, f.emitter, f.history, logging.NewNop())
	return f
}

// reload simulates a process restart over the same local store.
func (f *fixture) reload(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewSQLiteStore(f.db), &recordingEmitter{}, ui.NewHistory(ui.RouteHome), logging.NewNop())
	_, err := svc.Restore(context.Background())
	require.NoError(t, err)
	return svc
}
