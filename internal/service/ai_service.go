package service

import (
	"academy_backend/internal/config"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

// RewriteInput 一次改写调用的全部输入
type RewriteInput struct {
	PromptType  string
	Inputs      map[string]any
	ModuleID    string
	Temperature float64
	// BearerToken 调用方的访问令牌，边缘函数需要
	BearerToken string
}

// Rewriter AI 改写网关。无状态，不缓存
type Rewriter interface {
	Rewrite(ctx context.Context, in RewriteInput) (string, error)
}

// GatewayError 网关调用失败。调用方保留原文，不触发保存
type GatewayError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" rewrite failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewRewriter 按配置选择后端
func NewRewriter(cfg config.AIConfig) (Rewriter, error) {
	switch cfg.Provider {
	case "", "edge":
		if cfg.BaseURL == "" {
			return nil, errors.New("ai.base_url is required for the edge provider")
		}
		return NewEdgeGateway(cfg.BaseURL, cfg.APIKey, &http.Client{Timeout: cfg.Timeout()}), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("openai API key is required")
		}
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		return NewOpenAIGateway(openai.NewClientWithConfig(oc), cfg.Model, cfg.MaxTokens), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, errors.New("anthropic API key is required")
		}
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		return NewAnthropicGateway(&client, cfg.Model, cfg.MaxTokens), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
}

// EdgeGateway 调用托管的边缘函数，由它转发给模型并计量用量
type EdgeGateway struct {
	url    string
	apiKey string
	client *http.Client
}

func NewEdgeGateway(url, apiKey string, client *http.Client) *EdgeGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &EdgeGateway{url: url, apiKey: apiKey, client: client}
}

type edgeRequest struct {
	PromptType  string         `json:"promptType"`
	Inputs      map[string]any `json:"inputs"`
	ModuleID    string         `json:"moduleId,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

type edgeResponse struct {
	OK    bool            `json:"ok"`
	Text  string          `json:"text"`
	Usage json.RawMessage `json:"usage,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (g *EdgeGateway) Rewrite(ctx context.Context, in RewriteInput) (string, error) {
	body, err := json.Marshal(edgeRequest{
		PromptType:  in.PromptType,
		Inputs:      in.Inputs,
		ModuleID:    in.ModuleID,
		Temperature: in.Temperature,
	})
	if err != nil {
		return "", &GatewayError{Provider: "edge", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Provider: "edge", Err: err}
	}
	token := in.BearerToken
	if token == "" {
		token = g.apiKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if g.apiKey != "" {
		req.Header.Set("apikey", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &GatewayError{Provider: "edge", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &GatewayError{Provider: "edge", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &GatewayError{Provider: "edge", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var out edgeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &GatewayError{Provider: "edge", StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "request rejected"
		}
		return "", &GatewayError{Provider: "edge", StatusCode: resp.StatusCode, Message: msg}
	}
	return nonEmpty("edge", out.Text)
}

// OpenAIGateway 直接调用 OpenAI 兼容接口
type OpenAIGateway struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAIGateway(client *openai.Client, model string, maxTokens int) *OpenAIGateway {
	if model == "" {
		model = openai.GPT4oMini
	}
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &OpenAIGateway{client: client, model: model, maxTokens: maxTokens}
}

func (g *OpenAIGateway) Rewrite(ctx context.Context, in RewriteInput) (string, error) {
	system, user, err := buildRewritePrompt(in)
	if err != nil {
		return "", &GatewayError{Provider: "openai", Err: err}
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxCompletionTokens: g.maxTokens,
		Temperature:         float32(in.Temperature),
	})
	if err != nil {
		gerr := &GatewayError{Provider: "openai", Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			gerr.StatusCode = apiErr.HTTPStatusCode
		}
		return "", gerr
	}
	if len(resp.Choices) == 0 {
		return "", &GatewayError{Provider: "openai", Message: "no choices in response"}
	}
	return nonEmpty("openai", resp.Choices[0].Message.Content)
}

// AnthropicGateway 直接调用 Anthropic Messages 接口
type AnthropicGateway struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicGateway(client *anthropic.Client, model string, maxTokens int) *AnthropicGateway {
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &AnthropicGateway{client: client, model: model, maxTokens: maxTokens}
}

func (g *AnthropicGateway) Rewrite(ctx context.Context, in RewriteInput) (string, error) {
	system, user, err := buildRewritePrompt(in)
	if err != nil {
		return "", &GatewayError{Provider: "anthropic", Err: err}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)},
		}},
	}
	if in.Temperature > 0 {
		params.Temperature = anthropic.Float(in.Temperature)
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		gerr := &GatewayError{Provider: "anthropic", Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			gerr.StatusCode = apiErr.StatusCode
		}
		return "", gerr
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return nonEmpty("anthropic", block.Text)
		}
	}
	return "", &GatewayError{Provider: "anthropic", Message: "no text content in response"}
}

// nonEmpty 空文本视为失败，避免清空用户内容
func nonEmpty(provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &GatewayError{Provider: provider, Message: "empty text"}
	}
	return text, nil
}
