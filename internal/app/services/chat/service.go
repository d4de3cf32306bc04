// Package chat stores conversations and brokers LLM-assisted replies.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/simsynai/platform/internal/app/domain/chat"
	"github.com/simsynai/platform/internal/app/llm"
	"github.com/simsynai/platform/internal/app/metrics"
	"github.com/simsynai/platform/internal/app/storage"
	"github.com/simsynai/platform/pkg/logger"
)

const systemPrompt = "You are SimSynAI's assistant. Help the user design, run and interpret simulation experiments. Be concise and concrete."

// historyWindow bounds how much prior conversation is replayed to the model.
const historyWindow = 10

// AdapterFactory builds an adapter for a provider/model pair. Injectable so
// tests can substitute a stub.
type AdapterFactory func(provider, apiKey, model string, client *http.Client) (llm.Adapter, error)

// Service stores chat history and generates assistant replies.
type Service struct {
	store        storage.ChatStore
	apiKeys      map[string]string
	defaultModel string
	factory      AdapterFactory
	client       *http.Client
	log          *logger.Logger
}

// New creates a chat service. A nil factory uses the real vendor adapters.
func New(store storage.ChatStore, apiKeys map[string]string, defaultModel string, factory AdapterFactory, log *logger.Logger) *Service {
	if factory == nil {
		factory = llm.New
	}
	if defaultModel == "" {
		defaultModel = llm.DefaultModels[llm.ProviderOpenAI]
	}
	if log == nil {
		log = logger.NewDefault("chat")
	}
	return &Service{
		store:        store,
		apiKeys:      apiKeys,
		defaultModel: defaultModel,
		factory:      factory,
		log:          log,
	}
}

// ProcessMessage stores the user's message, generates an assistant reply and
// stores that too. Generation failures never fail the request: the error is
// surfaced as the assistant's content so the conversation stays usable.
func (s *Service) ProcessMessage(ctx context.Context, userID, taskID, content, model string) (chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Message{}, fmt.Errorf("message content is required")
	}
	if model == "" {
		model = s.defaultModel
	}

	userMsg := chat.Message{
		ID:      uuid.NewString(),
		UserID:  userID,
		TaskID:  taskID,
		Role:    "user",
		Content: content,
		Model:   model,
	}
	if _, err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return chat.Message{}, fmt.Errorf("store user message: %w", err)
	}

	reply, provider := s.generate(ctx, userID, taskID, content, model)

	assistantMsg := chat.Message{
		ID:      uuid.NewString(),
		UserID:  userID,
		TaskID:  taskID,
		Role:    "assistant",
		Content: reply,
		Model:   model,
	}
	assistantMsg, err := s.store.CreateMessage(ctx, assistantMsg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("store assistant message: %w", err)
	}

	s.log.WithField("user_id", userID).
		WithField("provider", provider).
		WithField("model", model).
		Debug("chat message processed")
	return assistantMsg, nil
}

func (s *Service) generate(ctx context.Context, userID, taskID, content, model string) (reply, provider string) {
	provider, err := llm.ProviderForModel(model)
	if err != nil {
		return "error: " + err.Error(), "unknown"
	}

	adapter, err := s.factory(provider, s.apiKeys[provider], model, s.client)
	if err != nil {
		metrics.RecordChatGeneration(provider, false)
		return "error: " + err.Error(), provider
	}

	history := s.historyFor(ctx, userID, taskID)
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	// The just-stored user message may or may not be inside the window;
	// make sure it ends the prompt exactly once.
	if len(messages) == 0 || messages[len(messages)-1].Content != content || messages[len(messages)-1].Role != "user" {
		messages = append(messages, llm.Message{Role: "user", Content: content})
	}

	out, err := adapter.Generate(ctx, llm.Request{
		Messages: messages,
		System:   systemPrompt,
	})
	if err != nil {
		s.log.WithField("provider", provider).WithError(err).Warn("llm generation failed")
		metrics.RecordChatGeneration(provider, false)
		return "error: " + err.Error(), provider
	}

	metrics.RecordChatGeneration(provider, true)
	return out, provider
}

func (s *Service) historyFor(ctx context.Context, userID, taskID string) []chat.Message {
	history, err := s.store.ListMessages(ctx, userID, taskID, historyWindow)
	if err != nil {
		s.log.WithField("user_id", userID).WithError(err).Warn("load chat history")
		return nil
	}
	return history
}

// History returns the most recent messages for a user, optionally scoped to
// one task, in chronological order.
func (s *Service) History(ctx context.Context, userID, taskID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListMessages(ctx, userID, taskID, limit)
}
