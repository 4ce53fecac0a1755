package onboarding

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/exmate/exmate/internal/client/client"
	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/ui"
	"github.com/exmate/exmate/internal/logging"
)

var (
	ErrNoPendingOnboarding = errors.New("no onboarding in progress")
	ErrNicknameNotChecked  = errors.New("nickname availability not confirmed")
	ErrSubmitInFlight      = errors.New("submission already in progress")
	ErrStaleCheck          = errors.New("availability result superseded")
	ErrWrongStep           = errors.New("action not available on the current step")
)

const (
	msgNicknameAvailable   = "사용 가능한 닉네임입니다"
	msgCheckFailed         = "닉네임 확인에 실패했습니다."
	msgCheckUnreachable    = "닉네임 확인 중 오류가 발생했습니다."
	titleNicknameCheck     = "닉네임 확인 필요"
	msgNicknameCheck       = "사용 가능한 닉네임을 확인해주세요."
	titleNicknameFailed    = "닉네임 설정 실패"
	titleRegistrationFails = "회원가입 완료 실패"
	msgRetry               = "다시 시도해주세요."
)

// Authenticator is the one session operation the wizard needs.
type Authenticator interface {
	Login(ctx context.Context, token string, user *models.UserProfile) error
}

// NicknameStatus describes the nickname field and its latest check.
type NicknameStatus struct {
	Value     string
	Checking  bool
	Checked   bool
	Available bool
	Message   string
}

type nicknameCheck struct {
	value     string
	done      bool
	available bool
	message   string
}

// Wizard drives one onboarding flow at a time. Methods are safe for
// concurrent use; no lock is held across navigation, API or session calls.
type Wizard struct {
	api    client.Client
	auth   Authenticator
	states *StateStore
	nav    ui.Navigator
	notify ui.Notifier
	log    logging.Logger

	mu         sync.Mutex
	state      *models.OnboardingState
	nickname   string
	check      nicknameCheck
	checkSeq   uint64
	checking   bool
	submitting bool
	popular    []string
}

func NewWizard(api client.Client, auth Authenticator, states *StateStore, nav ui.Navigator, notify ui.Notifier, log logging.Logger) *Wizard {
	return &Wizard{
		api:    api,
		auth:   auth,
		states: states,
		nav:    nav,
		notify: notify,
		log:    log.With("component", "onboarding"),
	}
}

// Resume starts or restores the flow on an onboarding page. With token and
// user parameters it begins a new flow from them and strips them from the
// address; without, it restores the persisted flow.
func (w *Wizard) Resume(ctx context.Context, path string, params url.Values) error {
	path = ui.StripParams(path)
	token, rawUser := params.Get("token"), params.Get("user")

	if token != "" && rawUser != "" {
		res := models.DecodeUser(rawUser)
		if !res.OK() {
			w.log.Warn(ctx, "rejecting onboarding payload", "error", res.Err)
			w.Reset()
			w.nav.Navigate(ctx, ui.RouteLogin)
			return res.Err
		}
		st := newState(token, res.User, path)

		w.mu.Lock()
		w.install(st)
		snap := w.state.Clone()
		w.mu.Unlock()

		if err := w.states.Save(ctx, snap); err != nil {
			return fmt.Errorf("persist onboarding state: %w", err)
		}
		w.nav.Replace(ctx, path)
		w.log.Info(ctx, "onboarding started", "user_id", res.User.ID, "step", snap.Step)
		return nil
	}

	st, err := w.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("load onboarding state: %w", err)
	}
	if st == nil {
		w.Reset()
		w.nav.Navigate(ctx, ui.RouteLogin)
		return ErrNoPendingOnboarding
	}
	if len(st.Steps) == 0 || !slices.Contains(st.Steps, st.Step) {
		fresh := newState(st.PendingToken, st.PendingUser, path)
		fresh.Form = st.Form
		st = fresh
	}

	w.mu.Lock()
	w.install(st)
	w.mu.Unlock()
	return nil
}

func newState(token string, user *models.UserProfile, path string) *models.OnboardingState {
	steps := []models.Step{models.StepCountry, models.StepSchool}
	if path == ui.RouteNickname || (NextStep(user) == models.StepNickname && user.HasPlaceholderUsername()) {
		steps = append([]models.Step{models.StepNickname}, steps...)
	}
	return &models.OnboardingState{
		Step:         steps[0],
		Steps:        steps,
		PendingToken: token,
		PendingUser:  user.Clone(),
	}
}

// install makes st the active flow. Callers hold w.mu.
func (w *Wizard) install(st *models.OnboardingState) {
	w.state = st
	w.popular = nil
	w.submitting = false
	w.resetNicknameLocked()
	if st.Step == models.StepNickname {
		w.prefillNicknameLocked()
	}
}

func (w *Wizard) resetNicknameLocked() {
	w.nickname = ""
	w.check = nicknameCheck{}
	w.checkSeq++
	w.checking = false
}

// prefillNicknameLocked offers an already chosen username as available.
func (w *Wizard) prefillNicknameLocked() {
	u := w.state.PendingUser
	if u == nil || u.HasPlaceholderUsername() {
		return
	}
	w.nickname = u.Username
	w.check = nicknameCheck{value: u.Username, done: true, available: true, message: msgNicknameAvailable}
}

// Reset drops the in-memory flow without touching persisted state.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = nil
	w.popular = nil
	w.submitting = false
	w.resetNicknameLocked()
}

func (w *Wizard) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state != nil
}

func (w *Wizard) State() *models.OnboardingState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

func (w *Wizard) Step() models.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == nil {
		return ""
	}
	return w.state.Step
}

// Progress returns the 1-based position of the current step.
func (w *Wizard) Progress() (current, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == nil {
		return 0, 0
	}
	return slices.Index(w.state.Steps, w.state.Step) + 1, len(w.state.Steps)
}

// SetNickname replaces the nickname input. Any earlier availability result
// no longer applies.
func (w *Wizard) SetNickname(v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nickname = v
	w.check = nicknameCheck{}
	w.checkSeq++
	w.checking = false
}

func (w *Wizard) Nickname() NicknameStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nicknameStatusLocked()
}

func (w *Wizard) nicknameStatusLocked() NicknameStatus {
	st := NicknameStatus{Value: w.nickname, Checking: w.checking}
	if w.check.done && w.check.value == w.nickname {
		st.Checked = true
		st.Available = w.check.available
		st.Message = w.check.message
	}
	return st
}

// CheckAvailability validates the current nickname and asks the server
// whether it is free. A failed request counts as unavailable. The result is
// dropped with ErrStaleCheck when the input changed or another check
// started while this one was in flight.
func (w *Wizard) CheckAvailability(ctx context.Context) (NicknameStatus, error) {
	w.mu.Lock()
	if w.state == nil {
		w.mu.Unlock()
		return NicknameStatus{}, ErrNoPendingOnboarding
	}
	value := w.nickname
	normalized, err := ValidateNickname(value)
	if err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		w.check = nicknameCheck{value: value, done: true, message: verr.Message}
		st := w.nicknameStatusLocked()
		w.mu.Unlock()
		return st, err
	}
	w.checkSeq++
	seq := w.checkSeq
	w.checking = true
	w.mu.Unlock()

	res, apiErr := w.api.CheckUsername(ctx, normalized)

	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.checkSeq || value != w.nickname {
		return w.nicknameStatusLocked(), ErrStaleCheck
	}
	w.checking = false
	switch {
	case errors.Is(apiErr, client.ErrUnavailable):
		w.log.Warn(ctx, "nickname check unreachable", "error", apiErr)
		w.check = nicknameCheck{value: value, done: true, message: msgCheckUnreachable}
	case apiErr != nil:
		w.log.Warn(ctx, "nickname check failed", "error", apiErr)
		w.check = nicknameCheck{value: value, done: true, message: client.Message(apiErr, msgCheckFailed)}
	default:
		w.check = nicknameCheck{value: value, done: true, available: res.Available, message: res.Message}
	}
	return w.nicknameStatusLocked(), nil
}

// CanSubmitNickname is true only when the latest check for the exact
// current value said available and nothing is in flight.
func (w *Wizard) CanSubmitNickname() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canSubmitNicknameLocked()
}

func (w *Wizard) canSubmitNicknameLocked() bool {
	return !w.checking && w.check.done && w.check.available && w.check.value == w.nickname
}

// ConfirmNickname saves the nickname, skipping the server when it equals
// the username the user already has, and advances to the country step.
func (w *Wizard) ConfirmNickname(ctx context.Context) error {
	w.mu.Lock()
	if err := w.requireStepLocked(models.StepNickname); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	if !w.canSubmitNicknameLocked() {
		w.mu.Unlock()
		w.notify.Notify(ctx, ui.Notice{Title: titleNicknameCheck, Description: msgNicknameCheck, Severity: ui.SeverityError})
		return ErrNicknameNotChecked
	}
	nickname := norm.NFC.String(w.nickname)
	token := w.state.PendingToken
	user := w.state.PendingUser.Clone()
	w.submitting = true
	w.mu.Unlock()

	if user.HasPlaceholderUsername() || user.Username != nickname {
		updated, err := w.api.UpdateUsername(ctx, token, nickname)
		if err != nil {
			w.mu.Lock()
			w.submitting = false
			w.mu.Unlock()
			w.notify.Notify(ctx, ui.Notice{Title: titleNicknameFailed, Description: client.Message(err, msgRetry), Severity: ui.SeverityError})
			return fmt.Errorf("update username: %w", err)
		}
		user = updated
	}

	w.mu.Lock()
	w.submitting = false
	if w.state == nil || w.state.PendingToken != token {
		w.mu.Unlock()
		return ErrNoPendingOnboarding
	}
	w.state.PendingUser = user
	w.advanceLocked()
	snap := w.state.Clone()
	w.mu.Unlock()

	w.log.Info(ctx, "nickname confirmed", "user_id", user.ID)
	if err := w.persist(ctx, snap); err != nil {
		return err
	}
	w.nav.Replace(ctx, ui.RouteCompleteRegistration)
	return nil
}

// SelectCountry records the country choice. There is no network call.
func (w *Wizard) SelectCountry(ctx context.Context, name string) error {
	if err := ValidateCountry(name); err != nil {
		return err
	}
	w.mu.Lock()
	if err := w.requireStepLocked(models.StepCountry); err != nil {
		w.mu.Unlock()
		return err
	}
	w.state.Form.Country = name
	snap := w.state.Clone()
	w.mu.Unlock()
	return w.persist(ctx, snap)
}

// SetSchool records the raw school input; normalization happens on submit.
func (w *Wizard) SetSchool(ctx context.Context, text string) error {
	w.mu.Lock()
	if err := w.requireStepLocked(models.StepSchool); err != nil {
		w.mu.Unlock()
		return err
	}
	w.state.Form.School = text
	snap := w.state.Clone()
	w.mu.Unlock()
	return w.persist(ctx, snap)
}

// Suggestions filters the popular schools against the current input. The
// popular list is fetched once per flow.
func (w *Wizard) Suggestions(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	if w.state == nil {
		w.mu.Unlock()
		return nil, ErrNoPendingOnboarding
	}
	input := w.state.Form.School
	popular := w.popular
	w.mu.Unlock()

	if popular == nil {
		fetched, err := w.api.PopularSchools(ctx)
		if err != nil {
			return nil, fmt.Errorf("popular schools: %w", err)
		}
		if fetched == nil {
			fetched = []string{}
		}
		w.mu.Lock()
		if w.state != nil {
			w.popular = fetched
		}
		w.mu.Unlock()
		popular = fetched
	}
	return FilterSuggestions(popular, input), nil
}

// Next confirms the current step. On the last step it finishes the flow.
func (w *Wizard) Next(ctx context.Context) error {
	switch w.Step() {
	case models.StepNickname:
		return w.ConfirmNickname(ctx)
	case models.StepCountry:
		return w.confirmCountry(ctx)
	case models.StepSchool:
		return w.Finish(ctx)
	case "":
		return ErrNoPendingOnboarding
	}
	return ErrWrongStep
}

func (w *Wizard) confirmCountry(ctx context.Context) error {
	w.mu.Lock()
	if err := w.requireStepLocked(models.StepCountry); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := ValidateCountry(w.state.Form.Country); err != nil {
		w.mu.Unlock()
		return err
	}
	w.advanceLocked()
	snap := w.state.Clone()
	w.mu.Unlock()
	return w.persist(ctx, snap)
}

// Back returns to the previous step, keeping every entered value. From the
// first step it abandons the flow and returns to sign-in.
func (w *Wizard) Back(ctx context.Context) error {
	w.mu.Lock()
	if w.state == nil {
		w.mu.Unlock()
		return ErrNoPendingOnboarding
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	i := slices.Index(w.state.Steps, w.state.Step)
	if i <= 0 {
		w.mu.Unlock()
		return w.Abandon(ctx)
	}
	w.state.Step = w.state.Steps[i-1]
	if w.state.Step == models.StepNickname {
		w.resetNicknameLocked()
		w.prefillNicknameLocked()
	}
	snap := w.state.Clone()
	w.mu.Unlock()

	if err := w.persist(ctx, snap); err != nil {
		return err
	}
	if snap.Step == models.StepNickname {
		w.nav.Replace(ctx, ui.RouteNickname)
	}
	return nil
}

// Abandon discards the flow and its persisted state and goes to sign-in.
func (w *Wizard) Abandon(ctx context.Context) error {
	w.Reset()
	err := w.states.Clear(ctx)
	if err != nil {
		w.log.Error(ctx, "failed to clear onboarding state", "error", err)
	}
	w.nav.Navigate(ctx, ui.RouteLogin)
	if err != nil {
		return fmt.Errorf("clear onboarding state: %w", err)
	}
	return nil
}

// Finish submits country and normalized school in a single call and, only
// on success, logs the user in with the returned profile. On failure the
// flow stays as it is for another attempt.
func (w *Wizard) Finish(ctx context.Context) error {
	w.mu.Lock()
	if err := w.requireStepLocked(models.StepSchool); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	country := w.state.Form.Country
	if err := ValidateCountry(country); err != nil {
		w.mu.Unlock()
		return err
	}
	school, err := ValidateSchool(w.state.Form.School)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	token := w.state.PendingToken
	w.submitting = true
	w.mu.Unlock()

	done := func() {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
	}

	user, err := w.api.CompleteRegistration(ctx, token, school, country)
	if err != nil {
		done()
		w.notify.Notify(ctx, ui.Notice{Title: titleRegistrationFails, Description: client.Message(err, msgRetry), Severity: ui.SeverityError})
		return fmt.Errorf("complete registration: %w", err)
	}
	if err := w.auth.Login(ctx, token, user); err != nil {
		done()
		w.notify.Notify(ctx, ui.Notice{Title: titleRegistrationFails, Description: msgRetry, Severity: ui.SeverityError})
		return fmt.Errorf("login: %w", err)
	}

	w.Reset()
	if err := w.states.Clear(ctx); err != nil {
		w.log.Warn(ctx, "failed to clear onboarding state", "error", err)
	}
	w.log.Info(ctx, "onboarding complete", "user_id", user.ID)
	w.nav.Navigate(ctx, ui.RouteHome)
	return nil
}

// requireStepLocked checks that a flow is active and on step.
func (w *Wizard) requireStepLocked(step models.Step) error {
	if w.state == nil {
		return ErrNoPendingOnboarding
	}
	if w.state.Step != step {
		return fmt.Errorf("%w: on %s, not %s", ErrWrongStep, w.state.Step, step)
	}
	return nil
}

func (w *Wizard) advanceLocked() {
	i := slices.Index(w.state.Steps, w.state.Step)
	if i >= 0 && i+1 < len(w.state.Steps) {
		w.state.Step = w.state.Steps[i+1]
	}
}

func (w *Wizard) persist(ctx context.Context, st *models.OnboardingState) error {
	if err := w.states.Save(ctx, st); err != nil {
		return fmt.Errorf("persist onboarding state: %w", err)
	}
	return nil
}
