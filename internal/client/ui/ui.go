// Package ui is the boundary between the identity core and whatever renders
// it: route names, navigation, and user-visible notices.
package ui

import (
	"context"
	"net/url"
	"strings"
)

const (
	RouteHome                 = "/"
	RouteLogin                = "/auth/login"
	RouteCallback             = "/auth/callback"
	RouteNickname             = "/auth/nickname"
	RouteCompleteRegistration = "/auth/complete-registration"
)

// Navigator moves the visitor between routes. Navigate is a page load;
// Replace rewrites the visible address without loading anything, which is
// how request parameters are stripped.
type Navigator interface {
	Navigate(ctx context.Context, target string)
	Replace(ctx context.Context, target string)
}

// Notifier surfaces a message to the visitor.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
)

type Notice struct {
	Title       string
	Description string
	Severity    Severity
}

// WithParams appends params to route as a query string.
func WithParams(route string, params url.Values) string {
	if len(params) == 0 {
		return route
	}
	return route + "?" + params.Encode()
}

// StripParams returns target without its query string or fragment.
func StripParams(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}
