package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/exmate/exmate/internal/client/ui"
	"github.com/exmate/exmate/internal/logging"
)

const (
	requestsPerMinute = 30
	readHeaderTimeout = 5 * time.Second

	landingPage = "로그인 처리가 완료되었습니다. 터미널로 돌아가 주세요.\n"
)

// OpenFunc loads location (path plus query) in the client.
type OpenFunc func(ctx context.Context, location string)

// Listener receives the provider's browser redirect on a loopback address
// and hands the location to the client as a page load.
type Listener struct {
	addr string
	open OpenFunc
	log  logging.Logger
	srv  *http.Server
}

func NewListener(addr string, open OpenFunc, log logging.Logger) *Listener {
	l := &Listener{addr: addr, open: open, log: log.With("component", "callback-listener")}
	l.srv = &http.Server{Handler: l.Handler(), ReadHeaderTimeout: readHeaderTimeout}
	return l
}

func (l *Listener) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(requestsPerMinute, time.Minute))

	r.Get(ui.RouteCallback, l.handle)
	r.Get(ui.RouteNickname, l.handle)
	r.Get(ui.RouteCompleteRegistration, l.handle)
	return r
}

// handle forwards a redirect carrying parameters and then sends the
// browser to the bare path, so the token does not linger in its address
// bar.
func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(landingPage))
		return
	}
	l.log.Info(r.Context(), "callback received", "path", r.URL.Path)
	l.open(context.WithoutCancel(r.Context()), r.URL.RequestURI())
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
}

// Start binds the listener and serves in the background. It returns the
// bound address, which differs from the configured one for ":0".
func (l *Listener) Start(ctx context.Context) (string, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error(ctx, "callback listener stopped", "error", err)
		}
	}()
	l.log.Info(ctx, "callback listener started", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

func (l *Listener) Shutdown(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}
