package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-screen/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama answers dialogue input with a model served by an Ollama instance. It follows the same
// contract as Conversation: Send never fails, it logs and falls back to the fixed reply strings.
type Ollama struct {
	model        string
	systemPrompt string

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model, systemPrompt string, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return Ollama{
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
		logger:       logger.With(slog.String("module", "ollama")),
	}, nil
}

// Send asks the model for a single, non-streamed answer to input. Each call is an independent
// exchange: earlier entries of the dialogue are not sent along.
func (o Ollama) Send(ctx context.Context, input string) string {
	var msgs []api.Message
	if o.systemPrompt != "" {
		msgs = append(msgs, api.Message{
			Role:    string(models.RoleSystem),
			Content: o.systemPrompt,
		})
	}
	msgs = append(msgs, api.Message{
		Role:    string(models.RoleUser),
		Content: input,
	})

	f := false
	req := api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &f,
	}

	var reply string
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		reply += res.Message.Content
		return nil
	}); err != nil {
		o.logger.Error("Error fetching AI response",
			slog.String("model", o.model),
			slog.String(errLoggerKey, err.Error()))
		return models.RequestFailed
	}

	if reply == "" {
		return models.NoReply
	}
	return reply
}
