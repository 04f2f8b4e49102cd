package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	gogpt "github.com/sashabaranov/go-openai"

	"chatrecall/internal/providers"
)

const Name = "OpenAI"

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the public endpoint, e.g. for a proxy.
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
	api *gogpt.Client
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	oc := gogpt.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = cfg.HTTPClient
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimSuffix(base, "/")
	}
	return &Client{cfg: cfg, api: gogpt.NewClientWithConfig(oc)}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Complete(ctx context.Context, systemInstruction, userMessage string) (providers.Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.Result{}, providers.ErrMissingAPIKey
	}

	resp, err := c.api.CreateChatCompletion(ctx, gogpt.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []gogpt.ChatCompletionMessage{
			{Role: gogpt.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: gogpt.ChatMessageRoleUser, Content: userMessage},
		},
	})
	if err != nil {
		return providers.Result{}, upstreamError(err)
	}

	res := providers.Result{
		Model:            c.cfg.Model,
		PromptTokens:     providers.Tokens(resp.Usage.PromptTokens),
		CompletionTokens: providers.Tokens(resp.Usage.CompletionTokens),
		TotalTokens:      providers.Tokens(resp.Usage.TotalTokens),
	}
	if len(resp.Choices) > 0 {
		res.Answer = resp.Choices[0].Message.Content
	}
	return res, nil
}

func upstreamError(err error) error {
	var (
		apiErr *gogpt.APIError
		reqErr *gogpt.RequestError
	)
	switch {
	case providers.IsTimeout(err):
		return providers.TransportError(Name, err)
	case errors.As(err, &apiErr):
		return &providers.UpstreamError{
			Provider:   Name,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	case errors.As(err, &reqErr):
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &providers.UpstreamError{
			Provider:   Name,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Err:        err,
		}
	default:
		return providers.TransportError(Name, err)
	}
}
