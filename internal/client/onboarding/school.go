package onboarding

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// schoolAbbreviations maps common short names to the canonical name stored
// on the server. Canonical names are Hangul and never appear as keys.
var schoolAbbreviations = map[string]string{
	"서울대":     "서울대학교",
	"연세대":     "연세대학교",
	"고려대":     "고려대학교",
	"성균관대":    "성균관대학교",
	"경희대":     "경희대학교",
	"중앙대":     "중앙대학교",
	"한양대":     "한양대학교",
	"이화여대":    "이화여자대학교",
	"홍익대":     "홍익대학교",
	"건국대":     "건국대학교",
	"동국대":     "동국대학교",
	"국민대":     "국민대학교",
	"숙명여대":    "숙명여자대학교",
	"서강대":     "서강대학교",
	"카이스트":    "한국과학기술원",
	"KAIST":   "한국과학기술원",
	"포스텍":     "포항공과대학교",
	"POSTECH": "포항공과대학교",
	"도쿄대":     "도쿄대학교",
	"교토대":     "교토대학교",
	"와세다대":    "와세다대학교",
	"게이오대":    "게이오대학교",
	"베이징대":    "베이징대학교",
	"칭화대":     "칭화대학교",
}

var foldedAbbreviations = func() map[string]string {
	m := make(map[string]string, len(schoolAbbreviations))
	fold := cases.Fold()
	for k, v := range schoolAbbreviations {
		m[fold.String(k)] = v
	}
	return m
}()

var (
	schoolNoise = regexp.MustCompile(`[\s\-_.,;:!?()\[\]{}'"]`)
	nonHangul   = regexp.MustCompile(`[^가-힣]`)
)

const maxSuggestions = 5

// NormalizeSchoolName reduces free-text input to the canonical Hangul
// form: noise characters are removed, abbreviations are expanded without
// regard to case, and everything but Hangul syllables is dropped. The
// abbreviation pass runs again after filtering so that the result is a
// fixed point.
func NormalizeSchoolName(input string) string {
	s := norm.NFC.String(input)
	s = schoolNoise.ReplaceAllString(s, "")
	s = expandAbbreviation(s)
	s = nonHangul.ReplaceAllString(s, "")
	return expandAbbreviation(s)
}

func expandAbbreviation(s string) string {
	if full, ok := foldedAbbreviations[cases.Fold().String(s)]; ok {
		return full
	}
	return s
}

// FilterSuggestions picks up to five popular names that contain the input,
// or whose first two characters appear in it.
func FilterSuggestions(popular []string, input string) []string {
	if input == "" {
		return nil
	}
	var out []string
	for _, name := range popular {
		if name == "" {
			continue
		}
		if strings.Contains(name, input) || strings.Contains(input, firstRunes(name, 2)) {
			out = append(out, name)
			if len(out) == maxSuggestions {
				break
			}
		}
	}
	return out
}

func firstRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
