// Package callback handles the identity provider's redirect: the token and
// serialized profile it delivers as request parameters are either turned
// into a session or forwarded into onboarding.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/onboarding"
	"github.com/exmate/exmate/internal/client/ui"
	"github.com/exmate/exmate/internal/logging"
)

var ErrMalformedCallback = errors.New("malformed callback payload")

const (
	titleLoginFailed = "로그인 실패"
	msgLoginFailed   = "로그인 정보를 처리하지 못했습니다. 다시 시도해주세요."
)

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeLoggedIn
	OutcomeOnboarding
	OutcomeRejected
	OutcomeAlreadyAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoggedIn:
		return "logged-in"
	case OutcomeOnboarding:
		return "onboarding"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAlreadyAuthenticated:
		return "already-authenticated"
	}
	return "none"
}

// Session is the part of the session service the router drives.
type Session interface {
	Login(ctx context.Context, token string, user *models.UserProfile) error
	Snapshot() models.Session
}

type Router struct {
	sess   Session
	nav    ui.Navigator
	notify ui.Notifier
	log    logging.Logger
}

func NewRouter(sess Session, nav ui.Navigator, notify ui.Notifier, log logging.Logger) *Router {
	return &Router{sess: sess, nav: nav, notify: notify, log: log.With("component", "callback")}
}

// Handle inspects a page load. It acts only when both token and user are
// present, and never on the onboarding pages, which consume their own
// parameters.
func (r *Router) Handle(ctx context.Context, path string, params url.Values) (Outcome, error) {
	path = ui.StripParams(path)
	if onboarding.IsOnboardingPath(path) {
		return OutcomeNone, nil
	}
	token, raw := params.Get("token"), params.Get("user")
	if token == "" || raw == "" {
		return OutcomeNone, nil
	}

	res := models.DecodeUser(raw)
	if !res.OK() {
		r.log.Warn(ctx, "rejecting callback payload", "error", res.Err)
		r.notify.Notify(ctx, ui.Notice{Title: titleLoginFailed, Description: msgLoginFailed, Severity: ui.SeverityError})
		r.nav.Navigate(ctx, ui.RouteLogin)
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedCallback, res.Err)
	}
	user := res.User
	r.nav.Replace(ctx, path)

	step := onboarding.NextStep(user)
	if step != models.StepDone {
		forward, err := models.EncodeUser(user)
		if err != nil {
			return OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
		target := onboarding.Route(user, step)
		r.log.Info(ctx, "profile incomplete, entering onboarding", "user_id", user.ID, "step", step)
		r.nav.Navigate(ctx, ui.WithParams(target, url.Values{"token": {token}, "user": {forward}}))
		return OutcomeOnboarding, nil
	}

	if snap := r.sess.Snapshot(); snap.Token == token && snap.User != nil && snap.User.ID == user.ID {
		r.nav.Navigate(ctx, ui.RouteHome)
		return OutcomeAlreadyAuthenticated, nil
	}
	if err := r.sess.Login(ctx, token, user); err != nil {
		r.notify.Notify(ctx, ui.Notice{Title: titleLoginFailed, Description: msgLoginFailed, Severity: ui.SeverityError})
		r.nav.Navigate(ctx, ui.RouteLogin)
		return OutcomeRejected, fmt.Errorf("login: %w", err)
	}
	r.nav.Navigate(ctx, ui.RouteHome)
	return OutcomeLoggedIn, nil
}
