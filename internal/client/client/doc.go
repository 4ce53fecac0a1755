// Package client contains the transport side of the exmate client core.
//
// # Overview
//
// The package provides:
//  1. The REST contract the identity core consumes (see the Client
//     interface): nickname uniqueness check, nickname patch, registration
//     completion, popular schools, and the unread notification count.
//  2. A concrete JSON/HTTP implementation (see HTTPClient) that attaches
//     "Authorization: Bearer <token>" to authorized calls, maps HTTP
//     statuses to sentinel errors, sanitizes server messages, and invokes a
//     single registered hook whenever a bearer token is rejected.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors matched with errors.Is:
// ErrUnauthorized, ErrForbidden, ErrUnavailable, ErrServer. Errors carrying
// a server message are *APIError; Message extracts the text.
//
// All operations accept context.Context and honor cancellation.
package client
