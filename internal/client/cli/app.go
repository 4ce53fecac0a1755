package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exmate/exmate/internal/client/analytics"
	"github.com/exmate/exmate/internal/client/badge"
	"github.com/exmate/exmate/internal/client/callback"
	"github.com/exmate/exmate/internal/client/client"
	"github.com/exmate/exmate/internal/client/config"
	"github.com/exmate/exmate/internal/client/onboarding"
	"github.com/exmate/exmate/internal/client/realtime"
	"github.com/exmate/exmate/internal/client/session"
	"github.com/exmate/exmate/internal/client/ui"
	"github.com/exmate/exmate/internal/logging"
)

const shutdownTimeout = 3 * time.Second

type App struct {
	config *config.Config
	log    logging.Logger

	db       *sql.DB
	api      *client.HTTPClient
	emitter  *analytics.Async
	session  *session.Service
	history  *ui.History
	notices  *ui.Notices
	router   *callback.Router
	wizard   *onboarding.Wizard
	realtime *realtime.Client
	badge    *badge.Sync
	listener *callback.Listener
}

func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		return nil, err
	}

	api, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{config: c, log: log, db: db, api: api}
	a.history = ui.NewHistory(ui.RouteHome)
	a.notices = ui.NewNotices(func(n ui.Notice) { printlnFn(formatNotice(n)) })
	a.emitter = analytics.NewAsync(analytics.NewLogEmitter(log), log)
	a.session = session.NewService(session.NewSQLiteStore(db), a.emitter, a.history, log)
	a.router = callback.NewRouter(a.session, a.history, a.notices, log)
	a.wizard = onboarding.NewWizard(api, a.session, onboarding.NewStateStore(db, log), a.history, a.notices, log)
	a.badge = badge.New(api, c.BadgePollInterval, log)
	a.realtime = realtime.New(c.RealtimeURL, a.session, log)
	if c.CallbackAddr != "" {
		a.listener = callback.NewListener(c.CallbackAddr, a.load, log)
	}

	a.realtime.OnMessage(func(m realtime.Message) {
		if m.Type == realtime.TypeNotification {
			_ = a.badge.Refresh(context.Background())
		}
	})
	a.badge.OnChange(func(n int) { a.log.Debug(context.Background(), "unread count changed", "count", n) })
	a.history.OnLoad(a.onLoad)
	return a, nil
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Start restores the session, starts the background parts and sends an
// anonymous visitor to sign-in.
func (a *App) Start(ctx context.Context) error {
	restored, err := a.session.Init(ctx, a.api)
	if err != nil {
		return err
	}

	a.badge.Watch(ctx, a.session)

	if a.listener != nil {
		addr, err := a.listener.Start(ctx)
		if err != nil {
			return err
		}
		printlnFn("Waiting for sign-in redirects on http://" + addr + ui.RouteCallback)
	}

	if err := a.realtime.Connect(ctx); err != nil {
		a.log.Warn(ctx, "realtime channel unavailable", "error", err)
	}

	if !restored {
		a.history.Navigate(ctx, ui.RouteLogin)
	}
	return nil
}

// Run starts the app and serves the REPL on in until EOF, exit, or a
// termination signal.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.initSignalHandler(cancel)
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	printlnFn("exmate (type 'help' for commands)")
	lines := make(chan struct{})
	go func() {
		defer close(lines)
		runREPL(ctx, a, a.statusLine, bufio.NewScanner(in))
	}()

	select {
	case <-lines:
	case <-ctx.Done():
	}
	return nil
}

// Close stops background work and releases the store.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.realtime.Stop()
	a.badge.Stop()
	if a.listener != nil {
		if err := a.listener.Shutdown(ctx); err != nil {
			a.log.Warn(ctx, "callback listener shutdown", "error", err)
		}
	}
	a.emitter.Close()
	if err := a.db.Close(); err != nil {
		a.log.Warn(ctx, "close local store", "error", err)
	}
}

// load performs a page load of location, as a browser would.
func (a *App) load(ctx context.Context, location string) {
	a.history.Navigate(ctx, location)
}

// onLoad runs on every page load. Onboarding pages hand their parameters
// to the wizard; every other page goes through the callback router.
func (a *App) onLoad(ctx context.Context, location string) {
	u, err := url.Parse(location)
	if err != nil {
		a.log.Warn(ctx, "ignoring unparsable location", "location", location, "error", err)
		return
	}

	if onboarding.IsOnboardingPath(u.Path) {
		err := a.wizard.Resume(ctx, u.Path, u.Query())
		switch {
		case err == nil:
			a.printStep()
		case errors.Is(err, onboarding.ErrNoPendingOnboarding):
		default:
			a.log.Warn(ctx, "onboarding could not resume", "error", err)
		}
		return
	}
	a.wizard.Reset()

	out, err := a.router.Handle(ctx, u.Path, u.Query())
	if err != nil {
		a.log.Warn(ctx, "callback rejected", "error", err)
		return
	}
	if out == callback.OutcomeLoggedIn || out == callback.OutcomeAlreadyAuthenticated {
		if user := a.session.User(); user != nil {
			printlnFn(fmt.Sprintf("Signed in as %s.", user.Username))
		}
	}
}

func formatNotice(n ui.Notice) string {
	mark := "i"
	if n.Severity == ui.SeverityError {
		mark = "!"
	}
	if n.Description == "" {
		return fmt.Sprintf("[%s] %s", mark, n.Title)
	}
	return fmt.Sprintf("[%s] %s: %s", mark, n.Title, n.Description)
}
