// Package analytics decouples identity events from any telemetry backend.
// The session service only sees the Emitter interface.
package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/exmate/exmate/internal/logging"
)

// EventLogin is tracked after every successful login.
const EventLogin = "User Login"

// Emitter receives identity events. Implementations must not block for long;
// wrap slow backends in Async.
type Emitter interface {
	Identify(ctx context.Context, userID string, traits map[string]any)
	Track(ctx context.Context, event string, props map[string]any)
	Reset(ctx context.Context)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Identify(context.Context, string, map[string]any) {}
func (Nop) Track(context.Context, string, map[string]any)    {}
func (Nop) Reset(context.Context)                            {}

// LogEmitter writes events to a logger. Each event carries an insert id so
// duplicates are visible in the log.
type LogEmitter struct {
	log logging.Logger
}

func NewLogEmitter(log logging.Logger) *LogEmitter {
	return &LogEmitter{log: log.With("component", "analytics")}
}

func (e *LogEmitter) Identify(ctx context.Context, userID string, traits map[string]any) {
	e.log.Info(ctx, "identify", "insert_id", uuid.NewString(), "user_id", userID, "traits", traits)
}

func (e *LogEmitter) Track(ctx context.Context, event string, props map[string]any) {
	e.log.Info(ctx, "track", "insert_id", uuid.NewString(), "event", event, "props", props)
}

func (e *LogEmitter) Reset(ctx context.Context) {
	e.log.Info(ctx, "reset identity")
}
