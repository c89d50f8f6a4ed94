package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Subject pattern constants and helpers
const (
	streamName    = "monet_events"
	subjectPrefix = "monet"

	// Event types
	EventTypeControl   = "control"
	EventTypePhase     = "phase"
	EventTypeIteration = "iteration"
	EventTypeNote      = "note"
	EventTypeLayer     = "layer"
	EventTypeStatement = "statement"
)

// SubjectForSession returns the wildcard subject pattern for all events in a session.
// Example: "monet.6f1c....>"
func SubjectForSession(session string) string {
	return fmt.Sprintf("%s.%s.>", subjectPrefix, session)
}

// SubjectForEvent returns the specific subject for an event type in a session.
// Example: "monet.6f1c....note"
func SubjectForEvent(session, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, session, eventType)
}

// AllSubjects matches every event of every session.
func AllSubjects() string {
	return subjectPrefix + ".>"
}

// SessionFromSubject extracts the session token from an event subject.
func SessionFromSubject(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, subjectPrefix+".")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return "", false
	}
	return rest[:i], true
}

// SetupStream creates or updates the JetStream stream for monet events.
// The stream captures all events for all sessions with 30-day retention.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{AllSubjects()},
		Storage:  jetstream.FileStorage,
		MaxAge:   30 * 24 * time.Hour, // 30 day retention
	})
}
