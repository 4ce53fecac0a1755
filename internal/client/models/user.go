// Package models defines the identity records the client caches: the user
// profile, the session pair, and the transient onboarding state.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PlaceholderPrefix marks a username the identity provider assigned on
// first sign-in; the user has not chosen a nickname yet.
const PlaceholderPrefix = "kakao_"

// DefaultProvider is reported when the server omits the provider.
const DefaultProvider = "email"

// ErrMalformedUser is returned when a serialized profile cannot be decoded.
var ErrMalformedUser = errors.New("malformed user payload")

// UserID accepts both JSON strings and numbers; the server has used both.
type UserID string

func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// UserProfile is the client's cached copy of the server-owned identity record.
type UserProfile struct {
	ID                 UserID `json:"id"`
	Username           string `json:"username"`
	Provider           string `json:"provider,omitempty"`
	Country            string `json:"country,omitempty"`
	School             string `json:"school,omitempty"`
	FullName           string `json:"fullName,omitempty"`
	OnboardingComplete *bool  `json:"onboardingComplete,omitempty"`

	// NeedsAdditionalInfo is the flag older servers send instead of
	// OnboardingComplete.
	NeedsAdditionalInfo *bool `json:"needsAdditionalInfo,omitempty"`
}

// HasPlaceholderUsername reports whether the nickname still needs choosing.
func (u *UserProfile) HasPlaceholderUsername() bool {
	return u.Username == "" || strings.HasPrefix(u.Username, PlaceholderPrefix)
}

func (u *UserProfile) ProviderOrDefault() string {
	if u.Provider == "" {
		return DefaultProvider
	}
	return u.Provider
}

// Clone returns a deep copy, so cached profiles never alias caller data.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	if u.OnboardingComplete != nil {
		v := *u.OnboardingComplete
		c.OnboardingComplete = &v
	}
	if u.NeedsAdditionalInfo != nil {
		v := *u.NeedsAdditionalInfo
		c.NeedsAdditionalInfo = &v
	}
	return &c
}

// Traits are the identity properties reported to analytics.
func (u *UserProfile) Traits() map[string]any {
	return map[string]any{
		"username": u.Username,
		"country":  u.Country,
		"school":   u.School,
		"provider": u.ProviderOrDefault(),
	}
}

// Bool is a helper for building profiles with explicit flags.
func Bool(v bool) *bool { return &v }

// ParseResult is the outcome of decoding a serialized profile: either User
// is set, or Err is.
type ParseResult struct {
	User *UserProfile
	Err  error
}

func (r ParseResult) OK() bool { return r.Err == nil && r.User != nil }

// DecodeUser parses a serialized profile as delivered in a redirect. The
// payload may arrive still percent-encoded; both forms are accepted. A
// payload that is not a JSON object with an id is malformed.
func DecodeUser(raw string) ParseResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParseResult{Err: fmt.Errorf("%w: empty", ErrMalformedUser)}
	}

	u, err := decodeUserJSON(raw)
	if err != nil {
		unescaped, uerr := url.QueryUnescape(raw)
		if uerr != nil || unescaped == raw {
			return ParseResult{Err: err}
		}
		if u, err = decodeUserJSON(unescaped); err != nil {
			return ParseResult{Err: err}
		}
	}
	return ParseResult{User: u}
}

func decodeUserJSON(s string) (*UserProfile, error) {
	var u *UserProfile
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUser, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformedUser)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedUser)
	}
	return u, nil
}

// EncodeUser serializes a profile for forwarding or persistence.
func EncodeUser(u *UserProfile) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
