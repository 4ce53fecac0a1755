package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/onboarding"
	"github.com/exmate/exmate/internal/client/realtime"
	"github.com/exmate/exmate/internal/client/session"
	"github.com/exmate/exmate/internal/client/ui"
)

var (
	errUsage           = errors.New("missing argument")
	errNotSignedIn     = errors.New("not signed in")
	errNotOnboarding   = errors.New("no registration in progress")
	errNicknameTaken   = errors.New("nickname not available")
	errUnknownLocation = errors.New("location is not a sign-in redirect")
)

func (a *App) isLoggedIn() bool { return a.session.Authenticated() }

func (a *App) inOnboarding() bool { return a.wizard.Active() }

// Open loads a location pasted by the user. Full URLs are accepted when
// their path is one of the client's own routes.
func (a *App) Open(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("%w: open <url>", errUsage)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse location: %w", err)
	}
	switch u.Path {
	case ui.RouteCallback, ui.RouteNickname, ui.RouteCompleteRegistration, ui.RouteHome, ui.RouteLogin:
	default:
		return errUnknownLocation
	}
	a.load(ctx, u.RequestURI())
	return nil
}

// Resume continues a registration persisted by an earlier run.
func (a *App) Resume(ctx context.Context) error {
	if a.isLoggedIn() {
		return errors.New("already signed in")
	}
	a.load(ctx, ui.RouteCompleteRegistration)
	if !a.wizard.Active() {
		return errNotOnboarding
	}
	return nil
}

func (a *App) SetNickname(ctx context.Context, v string) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	a.wizard.SetNickname(v)
	return nil
}

func (a *App) CheckNickname(ctx context.Context) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	st, err := a.wizard.CheckAvailability(ctx)
	if err != nil && !errors.Is(err, onboarding.ErrValidation) {
		return err
	}
	mark := "✗"
	if st.Available {
		mark = "✓"
	}
	printlnFn(fmt.Sprintf("%s %s", mark, st.Message))
	return nil
}

func (a *App) SelectCountry(ctx context.Context, name string) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	return a.wizard.SelectCountry(ctx, name)
}

func (a *App) ListCountries(context.Context) error {
	printlnFn(strings.Join(onboarding.Countries, ", "))
	return nil
}

func (a *App) SetSchool(ctx context.Context, text string) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	return a.wizard.SetSchool(ctx, text)
}

func (a *App) Suggest(ctx context.Context) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	names, err := a.wizard.Suggestions(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		printlnFn("No suggestions.")
		return nil
	}
	for _, n := range names {
		printlnFn("  " + n)
	}
	return nil
}

func (a *App) Next(ctx context.Context) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	if err := a.wizard.Next(ctx); err != nil {
		return err
	}
	if a.wizard.Active() {
		a.printStep()
	} else if user := a.session.User(); user != nil {
		printlnFn(fmt.Sprintf("Welcome, %s!", user.Username))
	}
	return nil
}

func (a *App) Back(ctx context.Context) error {
	if err := a.requireOnboarding(); err != nil {
		return err
	}
	if err := a.wizard.Back(ctx); err != nil {
		return err
	}
	if a.wizard.Active() {
		a.printStep()
	}
	return nil
}

// Rename changes the nickname of a signed-in user: validate, check
// availability, update, then refresh the cached profile.
func (a *App) Rename(ctx context.Context, nickname string) error {
	if !a.session.RequireAuth(ctx) {
		return errNotSignedIn
	}
	normalized, err := onboarding.ValidateNickname(nickname)
	if err != nil {
		return err
	}
	check, err := a.api.CheckUsername(ctx, normalized)
	if err != nil {
		return fmt.Errorf("check nickname: %w", err)
	}
	if !check.Available {
		return fmt.Errorf("%w: %s", errNicknameTaken, check.Message)
	}

	updated, err := a.api.UpdateUsername(ctx, a.session.Token(), normalized)
	if err != nil {
		return fmt.Errorf("update nickname: %w", err)
	}
	if err := a.session.UpdateUser(ctx, updated); err != nil {
		return err
	}
	printlnFn("Nickname changed to " + updated.Username + ".")
	return nil
}

func (a *App) Badge(ctx context.Context) error {
	if !a.session.RequireAuth(ctx) {
		return errNotSignedIn
	}
	if err := a.badge.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh unread count: %w", err)
	}
	printlnFn(fmt.Sprintf("Unread notifications: %d", a.badge.Count()))
	return nil
}

// Reconnect closes the realtime channel and opens a fresh one.
func (a *App) Reconnect(ctx context.Context) error {
	a.realtime.Close()
	if err := a.realtime.Connect(ctx); err != nil {
		return err
	}
	printlnFn("Realtime channel " + a.realtime.State().String() + ".")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return errNotSignedIn
	}
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Signed out.")
	return nil
}

func (a *App) Status(context.Context) error {
	snap := a.session.Snapshot()
	if snap.Authenticated() {
		printlnFn(fmt.Sprintf("Signed in as %s (%s)", snap.User.Username, describeUser(snap.User)))
		if exp, ok := session.TokenExpiry(snap.Token); ok {
			printlnFn("Token expires " + exp.Local().Format("2006-01-02 15:04"))
		}
		printlnFn(fmt.Sprintf("Unread notifications: %d", a.badge.Count()))
	} else {
		printlnFn("Signed out.")
	}
	if a.wizard.Active() {
		cur, total := a.wizard.Progress()
		printlnFn(fmt.Sprintf("Registration step %d/%d: %s", cur, total, a.wizard.Step()))
	}
	printlnFn("Location: " + a.history.Current())
	printlnFn("Realtime: " + a.realtime.State().String())
	return nil
}

func (a *App) statusLine() string {
	switch {
	case a.wizard.Active():
		cur, total := a.wizard.Progress()
		return fmt.Sprintf("[%s %d/%d] ", a.wizard.Step(), cur, total)
	case a.isLoggedIn():
		s := "(" + a.session.User().Username
		if n := a.badge.Count(); n > 0 {
			s += fmt.Sprintf(" •%d", n)
		}
		if a.realtime.State() != realtime.StateAuthenticated {
			s += " offline"
		}
		return s + ") "
	}
	return ""
}

func (a *App) printStep() {
	cur, total := a.wizard.Progress()
	var hint string
	switch a.wizard.Step() {
	case models.StepNickname:
		hint = "Choose a nickname: nick <name>, check, next"
		if st := a.wizard.Nickname(); st.Checked && st.Available {
			hint = fmt.Sprintf("Nickname %q is available: next to keep it, or nick <name>", st.Value)
		}
	case models.StepCountry:
		hint = "Where is your exchange? country <name> (see countries), next"
	case models.StepSchool:
		hint = "Exchange school, in Korean: school <name>, suggest, next"
	}
	printlnFn(fmt.Sprintf("Step %d/%d. %s", cur, total, hint))
}

func (a *App) requireOnboarding() error {
	if !a.wizard.Active() {
		return errNotOnboarding
	}
	return nil
}

func describeUser(u *models.UserProfile) string {
	parts := []string{u.ProviderOrDefault()}
	if u.Country != "" {
		parts = append(parts, u.Country)
	}
	if u.School != "" {
		parts = append(parts, u.School)
	}
	return strings.Join(parts, ", ")
}
