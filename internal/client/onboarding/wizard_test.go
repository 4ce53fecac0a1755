package onboarding

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exmate/exmate/internal/client/client"
	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/ui"
)

func startParams(t *testing.T, u *models.UserProfile) url.Values {
	return url.Values{"token": {"pending"}, "user": {encoded(t, u)}}
}

func TestResume_FromParams(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.history.Navigate(ctx, ui.RouteNickname+"?token=pending&user=x")

	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))

	assert.Equal(t, ui.RouteNickname, h.history.Current())
	assert.Equal(t, models.StepNickname, h.wizard.Step())
	cur, total := h.wizard.Progress()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 3, total)
	assert.Zero(t, h.auth.count())

	st, err := h.states.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "pending", st.PendingToken)
}

func TestResume_MalformedPayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.wizard.Resume(ctx, ui.RouteNickname, url.Values{"token": {"pending"}, "user": {"{oops"}})

	require.ErrorIs(t, err, models.ErrMalformedUser)
	assert.Equal(t, ui.RouteLogin, h.history.Current())
	assert.False(t, h.wizard.Active())
}

func TestResume_NothingPending(t *testing.T) {
	h := newHarness(t)

	err := h.wizard.Resume(context.Background(), ui.RouteCompleteRegistration, nil)

	require.ErrorIs(t, err, ErrNoPendingOnboarding)
	assert.Equal(t, ui.RouteLogin, h.history.Current())
}

func TestResume_RestoresAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))
	h.wizard.SetNickname("민수")
	_, err := h.wizard.CheckAvailability(ctx)
	require.NoError(t, err)
	require.NoError(t, h.wizard.Next(ctx))
	require.NoError(t, h.wizard.SelectCountry(ctx, "France"))

	restarted := h.newWizard()
	require.NoError(t, restarted.Resume(ctx, ui.RouteCompleteRegistration, nil))

	st := restarted.State()
	assert.Equal(t, models.StepCountry, st.Step)
	assert.Equal(t, "France", st.Form.Country)
	assert.Equal(t, "민수", st.PendingUser.Username)
	cur, total := restarted.Progress()
	assert.Equal(t, 2, cur)
	assert.Equal(t, 3, total)
}

func TestResume_ChosenUsernameSkipsNicknameStep(t *testing.T) {
	h := newHarness(t)
	u := &models.UserProfile{ID: "1", Username: "민수", OnboardingComplete: models.Bool(false)}

	require.NoError(t, h.wizard.Resume(context.Background(), ui.RouteCompleteRegistration, startParams(t, u)))

	assert.Equal(t, models.StepCountry, h.wizard.Step())
	_, total := h.wizard.Progress()
	assert.Equal(t, 2, total)
}

func TestResume_NicknamePagePrefillsChosenUsername(t *testing.T) {
	h := newHarness(t)
	u := &models.UserProfile{ID: "1", Username: "민수", OnboardingComplete: models.Bool(false)}

	require.NoError(t, h.wizard.Resume(context.Background(), ui.RouteNickname, startParams(t, u)))

	st := h.wizard.Nickname()
	assert.Equal(t, "민수", st.Value)
	assert.True(t, st.Available)
	assert.True(t, h.wizard.CanSubmitNickname())
}

func TestCheckAvailability_InvalidSkipsServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))

	h.wizard.SetNickname("민수!")
	st, err := h.wizard.CheckAvailability(ctx)

	require.ErrorIs(t, err, ErrValidation)
	assert.False(t, st.Available)
	assert.Equal(t, MsgNicknameFormat, st.Message)
	assert.Empty(t, h.api.checks)
	assert.False(t, h.wizard.CanSubmitNickname())
}

func TestCheckAvailability_StaleResultDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))

	started := make(chan struct{})
	release := make(chan struct{})
	h.api.checkFn = func(context.Context, string) (client.UsernameCheck, error) {
		close(started)
		<-release
		return client.UsernameCheck{Available: true, Message: "ok"}, nil
	}

	h.wizard.SetNickname("민수")
	var (
		wg       sync.WaitGroup
		checkErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, checkErr = h.wizard.CheckAvailability(ctx)
	}()
	<-started
	h.wizard.SetNickname("민수2")
	close(release)
	wg.Wait()

	require.ErrorIs(t, checkErr, ErrStaleCheck)
	assert.False(t, h.wizard.CanSubmitNickname())
	assert.False(t, h.wizard.Nickname().Checked)
	require.ErrorIs(t, h.wizard.ConfirmNickname(ctx), ErrNicknameNotChecked)
}

func TestCheckAvailability_FailureIsUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))
	h.api.checkFn = func(context.Context, string) (client.UsernameCheck, error) {
		return client.UsernameCheck{}, client.ErrUnavailable
	}

	h.wizard.SetNickname("민수")
	st, err := h.wizard.CheckAvailability(ctx)

	require.NoError(t, err)
	assert.True(t, st.Checked)
	assert.False(t, st.Available)
	assert.Equal(t, msgCheckUnreachable, st.Message)
}

func TestConfirmNickname_RequiresCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))

	h.wizard.SetNickname("민수")
	require.ErrorIs(t, h.wizard.Next(ctx), ErrNicknameNotChecked)

	notices := h.notices.All()
	require.Len(t, notices, 1)
	assert.Equal(t, ui.SeverityError, notices[0].Severity)
	assert.Empty(t, h.api.updates)
}

func TestConfirmNickname_UnavailableBlocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))
	h.api.checkFn = func(context.Context, string) (client.UsernameCheck, error) {
		return client.UsernameCheck{Available: false, Message: "이미 사용 중인 닉네임입니다"}, nil
	}

	h.wizard.SetNickname("민수")
	st, err := h.wizard.CheckAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, "이미 사용 중인 닉네임입니다", st.Message)

	require.ErrorIs(t, h.wizard.ConfirmNickname(ctx), ErrNicknameNotChecked)
}

func TestConfirmNickname_UnchangedUsernameSkipsServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := &models.UserProfile{ID: "1", Username: "민수", OnboardingComplete: models.Bool(false)}
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, u)))

	require.NoError(t, h.wizard.Next(ctx))

	assert.Empty(t, h.api.updates)
	assert.Equal(t, models.StepCountry, h.wizard.Step())
	assert.Equal(t, ui.RouteCompleteRegistration, h.history.Current())
}

func TestFullFlow_SingleFinalizationThenLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))

	h.wizard.SetNickname("민수")
	_, err := h.wizard.CheckAvailability(ctx)
	require.NoError(t, err)
	require.NoError(t, h.wizard.Next(ctx))
	assert.Equal(t, []string{"민수"}, h.api.updates)
	assert.Zero(t, h.auth.count())

	require.NoError(t, h.wizard.SelectCountry(ctx, "France"))
	require.NoError(t, h.wizard.Next(ctx))
	require.NoError(t, h.wizard.SetSchool(ctx, "서울대"))
	assert.Zero(t, h.auth.count())

	require.NoError(t, h.wizard.Next(ctx))

	assert.Equal(t, []completeCall{{token: "pending", school: "서울대학교", country: "France"}}, h.api.completeCalls())
	require.Equal(t, 1, h.auth.count())
	assert.Equal(t, "pending", h.auth.logins[0].token)
	assert.Equal(t, "서울대학교", h.auth.logins[0].user.School)
	assert.Equal(t, ui.RouteHome, h.history.Current())
	assert.False(t, h.wizard.Active())

	st, err := h.states.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func toSchoolStep(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	u := &models.UserProfile{ID: "1", Username: "민수", Country: "", OnboardingComplete: models.Bool(true)}
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteCompleteRegistration, startParams(t, u)))
	require.NoError(t, h.wizard.SelectCountry(ctx, "Japan"))
	require.NoError(t, h.wizard.Next(ctx))
	require.NoError(t, h.wizard.SetSchool(ctx, "도쿄대"))
}

func TestFinish_FailureKeepsStateForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	toSchoolStep(t, h)

	h.api.completeFn = func(context.Context, string, string, string) (*models.UserProfile, error) {
		return nil, &client.APIError{Status: 400, Message: "잘못된 요청"}
	}
	err := h.wizard.Next(ctx)
	require.Error(t, err)

	assert.Zero(t, h.auth.count())
	assert.Equal(t, models.StepSchool, h.wizard.Step())
	notices := h.notices.All()
	require.NotEmpty(t, notices)
	assert.Equal(t, "잘못된 요청", notices[len(notices)-1].Description)

	h.api.completeFn = nil
	require.NoError(t, h.wizard.Next(ctx))
	assert.Equal(t, 1, h.auth.count())
	assert.Len(t, h.api.completeCalls(), 2)
}

func TestFinish_ConcurrentSubmitRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	toSchoolStep(t, h)

	started := make(chan struct{})
	release := make(chan struct{})
	h.api.completeFn = func(_ context.Context, _, school, country string) (*models.UserProfile, error) {
		close(started)
		<-release
		return &models.UserProfile{ID: "1", Username: "민수", School: school, Country: country}, nil
	}

	done := make(chan error, 1)
	go func() { done <- h.wizard.Finish(ctx) }()
	<-started

	require.ErrorIs(t, h.wizard.Finish(ctx), ErrSubmitInFlight)
	close(release)
	require.NoError(t, <-done)

	assert.Len(t, h.api.completeCalls(), 1)
	assert.Equal(t, 1, h.auth.count())
}

func TestFinish_LatinSchoolRejectedLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	toSchoolStep(t, h)
	require.NoError(t, h.wizard.SetSchool(ctx, "University of Tokyo"))

	err := h.wizard.Finish(ctx)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "school", verr.Field)
	assert.Empty(t, h.api.completeCalls())
}

func TestFinish_LoginFailureLeavesFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	toSchoolStep(t, h)
	h.auth.err = errors.New("disk full")

	require.Error(t, h.wizard.Finish(ctx))

	assert.True(t, h.wizard.Active())
	assert.NotEqual(t, ui.RouteHome, h.history.Current())
}

func TestBack_KeepsValuesAndExitsFromFirstStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))
	h.wizard.SetNickname("민수")
	_, err := h.wizard.CheckAvailability(ctx)
	require.NoError(t, err)
	require.NoError(t, h.wizard.Next(ctx))
	require.NoError(t, h.wizard.SelectCountry(ctx, "France"))
	require.NoError(t, h.wizard.Next(ctx))
	require.NoError(t, h.wizard.SetSchool(ctx, "연세대"))

	require.NoError(t, h.wizard.Back(ctx))
	assert.Equal(t, models.StepCountry, h.wizard.Step())
	assert.Equal(t, "연세대", h.wizard.State().Form.School)

	require.NoError(t, h.wizard.Back(ctx))
	assert.Equal(t, models.StepNickname, h.wizard.Step())
	assert.Equal(t, ui.RouteNickname, h.history.Current())
	assert.True(t, h.wizard.CanSubmitNickname())
	assert.Equal(t, "France", h.wizard.State().Form.Country)

	require.NoError(t, h.wizard.Back(ctx))
	assert.Equal(t, ui.RouteLogin, h.history.Current())
	assert.False(t, h.wizard.Active())
	st, err := h.states.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSuggestions_FetchedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.popular = []string{"도쿄대학교", "교토대학교", "와세다대학교"}
	toSchoolStep(t, h)

	got, err := h.wizard.Suggestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"도쿄대학교"}, got)

	require.NoError(t, h.wizard.SetSchool(ctx, "교토"))
	got, err = h.wizard.Suggestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"교토대학교"}, got)
	assert.Equal(t, 1, h.api.popularN)
}

func TestSelectCountry_WrongStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wizard.Resume(ctx, ui.RouteNickname, startParams(t, placeholderUser())))

	require.ErrorIs(t, h.wizard.SelectCountry(ctx, "France"), ErrWrongStep)
	require.ErrorIs(t, h.wizard.SelectCountry(ctx, "Narnia"), ErrValidation)
}
