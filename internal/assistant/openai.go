package assistant

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hannahlabs/leadflow/internal/models"
)

// OpenAIBackend implements Backend over the OpenAI Assistants API. A context
// maps to a thread and a run to an assistant run on that thread.
type OpenAIBackend struct {
	client openai.Client
}

// NewOpenAIBackend creates a backend using the given API key, falling back to
// the OPENAI_API_KEY environment variable.
func NewOpenAIBackend(apiKey string) (*OpenAIBackend, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &OpenAIBackend{client: openai.NewClient(option.WithAPIKey(apiKey))}, nil
}

// CreateContext opens a fresh thread.
func (b *OpenAIBackend) CreateContext(ctx context.Context) (string, error) {
	thread, err := b.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AddMessage appends one transcript turn to the thread. Inbound turns are the
// lead speaking, everything else is attributed to the assistant.
func (b *OpenAIBackend) AddMessage(ctx context.Context, contextID string, msg Message) error {
	role := openai.BetaThreadMessageNewParamsRoleAssistant
	if msg.Role == models.DirectionInbound {
		role = openai.BetaThreadMessageNewParamsRoleUser
	}
	_, err := b.client.Beta.Threads.Messages.New(ctx, contextID, openai.BetaThreadMessageNewParams{
		Role: role,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(msg.Content),
		},
	})
	if err != nil {
		return fmt.Errorf("add thread message: %w", err)
	}
	return nil
}

// StartRun begins a run of the named assistant over the thread.
func (b *OpenAIBackend) StartRun(ctx context.Context, contextID, assistantID string) (string, error) {
	run, err := b.client.Beta.Threads.Runs.New(ctx, contextID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("start thread run: %w", err)
	}
	return run.ID, nil
}

// GetRunState maps the run status onto the backend-neutral state set.
func (b *OpenAIBackend) GetRunState(ctx context.Context, contextID, runID string) (RunState, error) {
	run, err := b.client.Beta.Threads.Runs.Get(ctx, contextID, runID)
	if err != nil {
		return "", fmt.Errorf("get thread run: %w", err)
	}
	switch run.Status {
	case openai.RunStatusCompleted:
		return RunStateCompleted, nil
	case openai.RunStatusFailed, openai.RunStatusIncomplete, openai.RunStatusExpired:
		return RunStateFailed, nil
	case openai.RunStatusCancelled, openai.RunStatusCancelling:
		return RunStateCancelled, nil
	default:
		return RunStatePending, nil
	}
}

// LatestReply returns the text of the thread's most recent assistant message.
func (b *OpenAIBackend) LatestReply(ctx context.Context, contextID string) (string, error) {
	page, err := b.client.Beta.Threads.Messages.List(ctx, contextID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("list thread messages: %w", err)
	}
	if len(page.Data) == 0 {
		return "", nil
	}
	for _, content := range page.Data[0].Content {
		if content.Type == "text" {
			return content.Text.Value, nil
		}
	}
	return "", nil
}
