package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/nats"
	"github.com/nats-io/nats.go/jetstream"
)

// Event represents a generic event stored in the JetStream event log.
// All session operations (phases, iterations, notes, layers, statements) are
// stored as events following an append-only event sourcing pattern.
type Event struct {
	ID        string          `json:"id"`        // Event ID, or NATS sequence when unset
	Timestamp time.Time       `json:"timestamp"` // When the event occurred
	Session   string          `json:"session"`   // Session ID
	Type      string          `json:"type"`      // Event type: control, phase, iteration, note, layer, statement
	Action    string          `json:"action"`    // Action type: start, add, change, complete, fail, save
	Meta      json.RawMessage `json:"meta"`      // Action-specific metadata
	Data      string          `json:"data"`      // Primary content (note text, statement, prompt)
}

// Store manages session state through JetStream event sourcing.
// It provides methods for publishing events and loading state from the event stream.
type Store struct {
	js     jetstream.JetStream // JetStream context for operations
	stream jetstream.Stream    // The monet_events stream

	journal *nats.Journal // set when the store owns an embedded server (see Open)
}

// NewStore creates a new Store instance with the given JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{
		js:     js,
		stream: stream,
	}
}

// Open starts an embedded journal server persisting under dataDir and
// returns a Store backed by it. Close releases the server.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	j, err := nats.Start(ctx, nats.Options{DataDir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	store := NewStore(j.JetStream(), j.Stream())
	store.journal = j
	return store, nil
}

// Close shuts down the embedded server if the store owns one.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

// PublishEvent appends an event to the JetStream event log.
// Events are published to subjects following the pattern: monet.{session}.{type}
// Returns the published ACK or an error if publishing fails.
func (s *Store) PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error) {
	// Set timestamp if not already set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event: %v", err)
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Session, event.Type)

	logger.Debug("Publishing event: session=%s type=%s action=%s", event.Session, event.Type, event.Action)

	ack, err := s.js.Publish(ctx, subject, data)
	if err != nil {
		logger.Error("Failed to publish event to subject %s: %v", subject, err)
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	logger.Debug("Event published successfully: seq=%d", ack.Sequence)
	return ack, nil
}

// State represents the current state of a session, reconstructed from events.
// It implements the reduce pattern by applying events to build up the current state.
type State struct {
	Session    string       `json:"session"`
	Prompt     string       `json:"prompt"`
	Provider   string       `json:"provider"`
	Model      string       `json:"model"`
	OutputDir  string       `json:"output_dir"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Phase      string       `json:"phase"`
	Notes      []*Note      `json:"notes"`      // Chronological list of notes
	Iterations []*Iteration `json:"iterations"` // Iteration history
	Layers     []*Layer     `json:"layers"`     // Committed layers
	Statement  string       `json:"statement"`
	Usage      Usage        `json:"usage"`    // Totals over every turn
	Complete   bool         `json:"complete"` // Session reached a statement
	Failure    string       `json:"failure"`  // Set when the session stopped on an error
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at,omitempty"`
}

// Usage is token accounting as recorded in the journal.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	ThinkingTokens      int `json:"thinking_tokens"`
}

func (u *Usage) add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.ThinkingTokens += other.ThinkingTokens
}

// Note represents a note recorded during a session.
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Origin    string    `json:"origin"` // plan, draw
	CreatedAt time.Time `json:"created_at"`
	Iteration int       `json:"iteration"` // Iteration that created this note, 0 for the plan
}

// Iteration represents a single drawing turn.
type Iteration struct {
	Number    int       `json:"number"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Complete  bool      `json:"complete"`
	Usage     Usage     `json:"usage"`
}

// Layer represents a committed layer.
type Layer struct {
	ID          string    `json:"id"`
	Iteration   int       `json:"iteration"`
	Elements    int       `json:"elements"`
	Definitions int       `json:"definitions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Apply applies an event to the state, implementing the reduce pattern.
// This method mutates the state based on the event type and action.
func (st *State) Apply(event Event) {
	switch event.Type {
	case nats.EventTypeControl:
		st.applyControlEvent(event)
	case nats.EventTypePhase:
		st.applyPhaseEvent(event)
	case nats.EventTypeIteration:
		st.applyIterationEvent(event)
	case nats.EventTypeNote:
		st.applyNoteEvent(event)
	case nats.EventTypeLayer:
		st.applyLayerEvent(event)
	case nats.EventTypeStatement:
		st.applyStatementEvent(event)
	}
}

// applyControlEvent handles session lifecycle events.
func (st *State) applyControlEvent(event Event) {
	switch event.Action {
	case "start":
		var meta startMeta
		json.Unmarshal(event.Meta, &meta)
		st.Prompt = event.Data
		st.Provider = meta.Provider
		st.Model = meta.Model
		st.OutputDir = meta.OutputDir
		st.Width = meta.Width
		st.Height = meta.Height
		st.StartedAt = event.Timestamp

	case "complete":
		st.Complete = true
		st.EndedAt = event.Timestamp

	case "fail":
		st.Failure = event.Data
		st.EndedAt = event.Timestamp
	}
}

// applyPhaseEvent records the most recent phase.
func (st *State) applyPhaseEvent(event Event) {
	if event.Action == "change" {
		st.Phase = event.Data
	}
}

// applyIterationEvent handles iteration-related events.
func (st *State) applyIterationEvent(event Event) {
	var meta struct {
		Number int   `json:"number"`
		Usage  Usage `json:"usage"`
	}
	json.Unmarshal(event.Meta, &meta)

	switch event.Action {
	case "start":
		st.Iterations = append(st.Iterations, &Iteration{
			Number:    meta.Number,
			StartedAt: event.Timestamp,
		})

	case "complete":
		for _, iter := range st.Iterations {
			if iter.Number == meta.Number {
				iter.Complete = true
				iter.EndedAt = event.Timestamp
				iter.Usage = meta.Usage
				break
			}
		}
		st.Usage.add(meta.Usage)
	}
}

// applyNoteEvent handles note-related events.
func (st *State) applyNoteEvent(event Event) {
	switch event.Action {
	case "add":
		var meta struct {
			Origin    string `json:"origin"`
			Iteration int    `json:"iteration"`
		}
		json.Unmarshal(event.Meta, &meta)

		st.Notes = append(st.Notes, &Note{
			ID:        event.ID,
			Content:   event.Data,
			Origin:    meta.Origin,
			CreatedAt: event.Timestamp,
			Iteration: meta.Iteration,
		})
	}
}

// applyLayerEvent handles layer commits.
func (st *State) applyLayerEvent(event Event) {
	switch event.Action {
	case "add":
		var meta struct {
			Iteration   int `json:"iteration"`
			Elements    int `json:"elements"`
			Definitions int `json:"definitions"`
		}
		json.Unmarshal(event.Meta, &meta)

		st.Layers = append(st.Layers, &Layer{
			ID:          event.Data,
			Iteration:   meta.Iteration,
			Elements:    meta.Elements,
			Definitions: meta.Definitions,
			CreatedAt:   event.Timestamp,
		})
	}
}

// applyStatementEvent handles the artist statement.
func (st *State) applyStatementEvent(event Event) {
	if event.Action != "save" {
		return
	}
	st.Statement = event.Data

	var meta struct {
		Usage Usage `json:"usage"`
	}
	json.Unmarshal(event.Meta, &meta)
	st.Usage.add(meta.Usage)
}

// LoadState reconstructs the current state of a session by reading and reducing
// all events from the JetStream event log. This implements the event sourcing pattern.
func (s *Store) LoadState(ctx context.Context, session string) (*State, error) {
	logger.Debug("Loading state for session: %s", session)

	// Create a consumer filtered to this session's events
	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: nats.SubjectForSession(session),
		DeliverPolicy: jetstream.DeliverAllPolicy, // Start from beginning
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		logger.Error("Failed to create consumer for session %s: %v", session, err)
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	state := &State{Session: session}

	// Fetch events in batches and reduce into state
	const batchSize = 1000
	malformedCount := 0
	totalEvents := 0
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			logger.Debug("Finished reading events (batch fetch complete)")
			break
		}

		msgCount := 0
		for msg := range msgs.Messages() {
			msgCount++
			totalEvents++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				// Skip but acknowledge to prevent redelivery
				malformedCount++
				meta, _ := msg.Metadata()
				if meta != nil {
					logger.Warn("Skipping malformed event (seq=%d): %v", meta.Sequence.Stream, err)
				}
				msg.Ack()
				continue
			}

			// Store the message sequence as ID if not set
			if event.ID == "" {
				if meta, err := msg.Metadata(); err == nil {
					event.ID = fmt.Sprintf("%d", meta.Sequence.Stream)
				}
			}

			state.Apply(event)
			msg.Ack()
		}

		logger.Debug("Processed batch: %d events", msgCount)

		if msgCount < batchSize {
			break
		}
	}

	if malformedCount > 0 {
		logger.Warn("Skipped %d malformed events while loading state", malformedCount)
	}

	logger.Debug("State loaded: %d total events, %d notes, %d iterations, %d layers",
		totalEvents, len(state.Notes), len(state.Iterations), len(state.Layers))

	return state, nil
}

// Sessions lists the IDs of every session with at least one event, sorted.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	info, err := s.stream.Info(ctx, jetstream.WithSubjectFilter(nats.AllSubjects()))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream info: %w", err)
	}

	seen := make(map[string]bool)
	for subject := range info.State.Subjects {
		if id, ok := nats.SessionFromSubject(subject); ok {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
