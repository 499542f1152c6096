// Package assistant drives conversations against a hosted assistant backend.
//
// The protocol is submit-and-poll: create a conversation context, add the
// transcript, start a run against a named assistant and poll until it reaches
// a terminal state. Replies are structured JSON; a run that fails or produces
// nothing yields a defined fallback reply rather than an error, so one flaky
// run never breaks the messaging loop.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
)

const (
	// DefaultPollInterval is how often a run's state is checked.
	DefaultPollInterval = 1 * time.Second
	// DefaultMaxWait bounds how long a single run may stay pending.
	DefaultMaxWait = 120 * time.Second
)

// RunState is the backend-neutral state of an assistant run.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// Terminal reports whether the run will make no further progress.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCancelled
}

// Message is one turn of the transcript handed to the backend.
type Message struct {
	Role    models.Direction
	Content string
}

// Backend is the hosted-assistant API surface the client needs. Implemented
// by OpenAIBackend; tests substitute their own.
type Backend interface {
	// CreateContext opens a fresh conversation context and returns its id.
	CreateContext(ctx context.Context) (string, error)
	// AddMessage appends one transcript turn to the context.
	AddMessage(ctx context.Context, contextID string, msg Message) error
	// StartRun begins a run of the named assistant over the context.
	StartRun(ctx context.Context, contextID, assistantID string) (string, error)
	// GetRunState reports the run's current state.
	GetRunState(ctx context.Context, contextID, runID string) (RunState, error)
	// LatestReply returns the text of the most recent assistant message, or
	// "" when the run produced none.
	LatestReply(ctx context.Context, contextID string) (string, error)
}

// Opts holds configuration options for the assistant client.
type Opts struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Option defines a configuration option for the assistant client.
type Option func(*Opts)

// WithPollInterval sets how often run state is polled.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithMaxWait sets the bound on how long a run may stay pending.
func WithMaxWait(d time.Duration) Option {
	return func(o *Opts) { o.MaxWait = d }
}

// Client runs the submit-and-poll protocol over a Backend.
type Client struct {
	backend      Backend
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewClient creates an assistant client over the given backend.
func NewClient(backend Backend, opts ...Option) *Client {
	cfg := Opts{PollInterval: DefaultPollInterval, MaxWait: DefaultMaxWait}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{backend: backend, pollInterval: cfg.PollInterval, maxWait: cfg.MaxWait}
}

// Converse submits the transcript to the named assistant and returns its
// structured reply. A run that fails, is cancelled or produces no message
// yields models.FallbackReply for the given phones. A run still pending after
// the configured bound returns models.ErrBackendTimeout; a reply that is not
// valid JSON returns models.ErrResponseParse.
func (c *Client) Converse(ctx context.Context, assistantID string, transcript []Message, userPhone, companyPhone string) (models.AIReply, error) {
	var zero models.AIReply

	contextID, err := c.backend.CreateContext(ctx)
	if err != nil {
		return zero, fmt.Errorf("create assistant context: %w", err)
	}
	for _, msg := range transcript {
		if err := c.backend.AddMessage(ctx, contextID, msg); err != nil {
			return zero, fmt.Errorf("add message to context %s: %w", contextID, err)
		}
	}

	runID, err := c.backend.StartRun(ctx, contextID, assistantID)
	if err != nil {
		return zero, fmt.Errorf("start run on context %s: %w", contextID, err)
	}
	slog.Debug("assistant.Converse: run started", "assistant_id", assistantID, "context_id", contextID, "run_id", runID)

	state, err := c.awaitRun(ctx, contextID, runID)
	if err != nil {
		return zero, err
	}
	if state != RunStateCompleted {
		slog.Warn("assistant.Converse: run did not complete", "run_id", runID, "state", state)
		return models.FallbackReply(userPhone, companyPhone), nil
	}

	text, err := c.backend.LatestReply(ctx, contextID)
	if err != nil {
		return zero, fmt.Errorf("fetch reply from context %s: %w", contextID, err)
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("assistant.Converse: completed run produced no message", "run_id", runID)
		return models.FallbackReply(userPhone, companyPhone), nil
	}

	var reply models.AIReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return zero, fmt.Errorf("%w: %v", models.ErrResponseParse, err)
	}
	return reply, nil
}

// awaitRun polls the run until it reaches a terminal state or the wait bound
// elapses.
func (c *Client) awaitRun(ctx context.Context, contextID, runID string) (RunState, error) {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.backend.GetRunState(ctx, contextID, runID)
		if err != nil {
			return "", fmt.Errorf("poll run %s: %w", runID, err)
		}
		if state.Terminal() {
			return state, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: run %s after %s", models.ErrBackendTimeout, runID, c.maxWait)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
