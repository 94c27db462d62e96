package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-screen/internal/models"
)

// Conversation posts user text to the conversation endpoint of the chat backend and turns the
// response into reply text. It never reports errors to its caller: every failure is logged and
// replaced by models.RequestFailed.
type Conversation struct {
	baseURL string
	path    string

	client *http.Client

	logger *slog.Logger
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

const (
	// DefaultBaseURL is the chat backend the screen talks to when nothing else is configured.
	DefaultBaseURL = "http://101.126.129.236:3000"
	// ConversationPath is appended to the base URL.
	ConversationPath = "/api/conversation"

	errLoggerKey = "err"
)

// WithHTTPClient sets the client used for requests. The default is a zero http.Client, which has no
// timeout.
func WithHTTPClient(client *http.Client) ConversationOption {
	return func(c *Conversation) {
		c.client = client
	}
}

// WithPath replaces ConversationPath.
func WithPath(path string) ConversationOption {
	return func(c *Conversation) {
		c.path = path
	}
}

// NewConversation creates a Conversation for the backend at baseURL. An empty baseURL selects
// DefaultBaseURL.
func NewConversation(baseURL string, logger *slog.Logger, opts ...ConversationOption) Conversation {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := Conversation{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		path:    ConversationPath,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "conversation")),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// URL returns the endpoint requests are posted to.
func (c Conversation) URL() string {
	return c.baseURL + c.path
}

// Send posts input as {"message": input} and returns the reply field of the response. Any JSON body
// without a non-empty string reply, arrays and scalars included, yields models.NoReply; a non-2xx
// status, a transport failure or a body that is not exactly one JSON value yields
// models.RequestFailed. The request is sent exactly once.
func (c Conversation) Send(ctx context.Context, input string) string {
	reply, err := c.send(ctx, input)
	if err != nil {
		c.logger.Error("Error fetching AI response",
			slog.String("url", c.URL()),
			slog.String(errLoggerKey, err.Error()))
		return models.RequestFailed
	}
	return reply.Text(models.NoReply)
}

func (c Conversation) send(ctx context.Context, input string) (models.ChatReply, error) {
	body, err := json.Marshal(models.ChatRequest{Message: input})
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// We read a bounded prefix of the body to give the log line some context
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ChatReply{}, fmt.Errorf("HTTP error! Status: %d, body: %s", resp.StatusCode, string(detail))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("failed to read response: %w", err)
	}
	reply, err := parseReply(data)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("AI response", slog.String("reply", reply.Text("")))

	return reply, nil
}

// parseReply accepts any JSON document. Only an object carrying a string reply field yields a reply.
func parseReply(data []byte) (models.ChatReply, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.ChatReply{}, err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return models.ChatReply{}, nil
	}
	text, ok := obj["reply"].(string)
	if !ok {
		return models.ChatReply{}, nil
	}
	return models.ChatReply{Reply: &text}, nil
}
