package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/carelens-ai/platform/pkg/common/config"
	"github.com/carelens-ai/platform/pkg/gateway/httpclient"
)

// Client is the single contract the assistant has with a language model:
// a system prompt plus the user's text in, raw assistant text out.
type Client interface {
	Ask(ctx context.Context, systemPrompt, userQuery string) (string, error)
	Online() bool
}

// chatClient talks to an OpenAI-compatible /chat/completions endpoint.
type chatClient struct {
	apiKey      string
	baseURL     string
	modelName   string
	temperature float64
	maxTokens   int
	http        *http.Client
	tokens      oauth2.TokenSource
}

// NewClient builds a chat client from configuration. When neither an API
// key nor OIDC client credentials are present the client is offline and
// every Ask fails fast with ErrOffline.
func NewClient(cfg *config.Config) Client {
	c := &chatClient{
		apiKey:      cfg.LLMAPIKey,
		baseURL:     cfg.LLMBaseURL,
		modelName:   cfg.LLMModelName,
		temperature: cfg.LLMTemperature,
		maxTokens:   cfg.LLMMaxTokens,
		http:        httpclient.New(cfg.LLMTimeout),
	}
	if cfg.OfflineMode {
		c.apiKey = ""
		return c
	}
	if c.apiKey == "" && cfg.OIDCClientID != "" && cfg.OIDCClientSecret != "" {
		// Enterprise LLM gateways hand out bearer tokens via client
		// credentials instead of static API keys.
		cc := clientcredentials.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			TokenURL:     fmt.Sprintf("%s/token", cfg.OIDCIssuer),
		}
		c.tokens = cc.TokenSource(context.Background())
	}
	return c
}

func (c *chatClient) Online() bool {
	return c.apiKey != "" || c.tokens != nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) Ask(ctx context.Context, systemPrompt, userQuery string) (string, error) {
	if !c.Online() {
		return "", ErrOffline
	}

	payload := chatRequest{
		Model: c.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userQuery},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payloadBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	bearer := c.apiKey
	if bearer == "" && c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return "", fmt.Errorf("fetching gateway token: %w", err)
		}
		bearer = token.AccessToken
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding llm response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}
