package onboarding

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// ErrValidation is wrapped by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError carries the message shown next to the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

const (
	MsgNicknameRequired = "닉네임을 입력해주세요."
	MsgNicknameFormat   = "한글, 영문, 숫자만 사용 가능하며 8자 이내여야 합니다."
	MsgCountryRequired  = "국가를 선택해주세요"
	MsgSchoolRequired   = "학교명을 입력해주세요"
	MsgSchoolHangul     = "한글명으로 작성해주세요"
)

var nicknamePattern = regexp.MustCompile(`^[가-힣a-zA-Z0-9]{1,8}$`)

var fieldValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "nickname", func(fl validator.FieldLevel) bool {
		return nicknamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "country", func(fl validator.FieldLevel) bool {
		return IsCountry(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// ValidateNickname checks a candidate nickname and returns its NFC form,
// which is what gets sent to the server.
func ValidateNickname(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", &ValidationError{Field: "nickname", Message: MsgNicknameRequired}
	}
	v = norm.NFC.String(v)
	if err := fieldValidator.Var(v, "nickname"); err != nil {
		return "", &ValidationError{Field: "nickname", Message: MsgNicknameFormat}
	}
	return v, nil
}

func ValidateCountry(v string) error {
	if err := fieldValidator.Var(v, "required,country"); err != nil {
		return &ValidationError{Field: "country", Message: MsgCountryRequired}
	}
	return nil
}

// ValidateSchool returns the normalized school name. Input that leaves
// nothing after normalization (a name typed only in Latin letters) is
// rejected rather than submitted empty.
func ValidateSchool(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", &ValidationError{Field: "school", Message: MsgSchoolRequired}
	}
	normalized := NormalizeSchoolName(v)
	if normalized == "" {
		return "", &ValidationError{Field: "school", Message: MsgSchoolHangul}
	}
	return normalized, nil
}
