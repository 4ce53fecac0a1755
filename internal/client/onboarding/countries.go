package onboarding

import "slices"

// Countries is the closed list offered on the country step.
var Countries = []string{
	"Australia",
	"Austria",
	"Belgium",
	"Brazil",
	"Canada",
	"China",
	"Czech Republic",
	"Denmark",
	"Finland",
	"France",
	"Germany",
	"Hong Kong",
	"Hungary",
	"Indonesia",
	"Ireland",
	"Italy",
	"Japan",
	"Malaysia",
	"Mexico",
	"Netherlands",
	"New Zealand",
	"Norway",
	"Poland",
	"Portugal",
	"Russia",
	"Singapore",
	"Spain",
	"Sweden",
	"Switzerland",
	"Taiwan",
	"Thailand",
	"Turkey",
	"United Kingdom",
	"United States",
	"Vietnam",
}

func IsCountry(name string) bool {
	return slices.Contains(Countries, name)
}
