// Package onboarding decides whether a profile is complete and drives the
// multi-step flow that completes it: nickname, then country, then school.
// Nothing here touches the session until the final step succeeds.
package onboarding

import (
	"strings"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/client/ui"
)

// NextStep derives where a profile stands. The first matching rule wins.
func NextStep(user *models.UserProfile) models.Step {
	if user == nil {
		return models.StepNickname
	}
	if user.OnboardingComplete != nil && !*user.OnboardingComplete {
		return models.StepNickname
	}
	if user.NeedsAdditionalInfo != nil && *user.NeedsAdditionalInfo {
		return models.StepNickname
	}
	if strings.TrimSpace(user.School) == "" || strings.TrimSpace(user.Country) == "" {
		return models.StepSchoolCountry
	}
	return models.StepDone
}

// Route maps a non-final step to the page that handles it. The nickname
// page is only used while the username is still a placeholder.
func Route(user *models.UserProfile, step models.Step) string {
	switch step {
	case models.StepDone:
		return ui.RouteHome
	case models.StepNickname:
		if user == nil || user.HasPlaceholderUsername() {
			return ui.RouteNickname
		}
	}
	return ui.RouteCompleteRegistration
}

// Redirect reports where a visitor on path should be sent. There is no
// redirect for a complete profile or while already inside the flow.
func Redirect(user *models.UserProfile, path string) (string, bool) {
	step := NextStep(user)
	if step == models.StepDone || IsOnboardingPath(path) {
		return "", false
	}
	return Route(user, step), true
}

// IsOnboardingPath reports whether path belongs to the flow's own pages.
func IsOnboardingPath(path string) bool {
	switch ui.StripParams(path) {
	case ui.RouteNickname, ui.RouteCompleteRegistration:
		return true
	}
	return false
}
