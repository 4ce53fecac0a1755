package client

import (
	"context"

	"github.com/exmate/exmate/internal/client/models"
)

// UsernameCheck is the server's verdict on a candidate nickname.
type UsernameCheck struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// Client is the REST contract the identity core consumes. Authorized calls
// take the bearer token explicitly: during onboarding it is a pending token
// that is not part of the session yet.
type Client interface {
	CheckUsername(ctx context.Context, username string) (UsernameCheck, error)
	UpdateUsername(ctx context.Context, token, username string) (*models.UserProfile, error)
	CompleteRegistration(ctx context.Context, token, school, country string) (*models.UserProfile, error)
	PopularSchools(ctx context.Context) ([]string, error)
	UnreadCount(ctx context.Context, token string) (int, error)
}
