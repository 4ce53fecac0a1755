package models

// Step names a position in the onboarding flow.
type Step string

const (
	StepNickname Step = "nickname"
	StepCountry  Step = "country"
	StepSchool   Step = "school"
	StepDone     Step = "done"

	// StepSchoolCountry is what the completion policy returns for a profile
	// missing school or country: enter the completion page, which begins
	// with the country step.
	StepSchoolCountry Step = "school/country"
)

// OnboardingForm holds values entered on the completion page.
type OnboardingForm struct {
	Country string `json:"country,omitempty"`
	School  string `json:"school,omitempty"`
}

// OnboardingState is everything needed to resume an unfinished flow. The
// pending pair authorizes server calls but is never a Session.
type OnboardingState struct {
	Step         Step           `json:"step"`
	Steps        []Step         `json:"steps"`
	PendingToken string         `json:"-"`
	PendingUser  *UserProfile   `json:"-"`
	Form         OnboardingForm `json:"form"`
}

// Clone returns a deep copy.
func (s *OnboardingState) Clone() *OnboardingState {
	if s == nil {
		return nil
	}
	c := *s
	c.Steps = append([]Step(nil), s.Steps...)
	c.PendingUser = s.PendingUser.Clone()
	return &c
}
