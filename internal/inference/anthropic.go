//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	defaultMaxTokens   = 1024
)

// Anthropic implements Service on top of the Anthropic Messages API.
//
// The client is configured with zero SDK retries: a failed call is a
// failed call in this harness, there is no retry layer anywhere.
type Anthropic struct {
	model       string
	apiKey      string
	baseURL     string
	httpTimeout time.Duration
	httpClient  *http.Client

	client anthropic.Client
}

// AnthropicOption configures the Anthropic service.
type AnthropicOption func(*Anthropic)

// WithAPIKey sets the API key.
func WithAPIKey(key string) AnthropicOption {
	return func(a *Anthropic) { a.apiKey = key }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) AnthropicOption {
	return func(a *Anthropic) { a.baseURL = baseURL }
}

// WithHTTPTimeout bounds each API call. Unbounded hangs have no
// recovery value in a demonstration harness.
func WithHTTPTimeout(timeout time.Duration) AnthropicOption {
	return func(a *Anthropic) { a.httpTimeout = timeout }
}

// WithHTTPClient overrides the HTTP client (ignores WithHTTPTimeout).
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(a *Anthropic) { a.httpClient = client }
}

// NewAnthropic creates an Anthropic-backed inference service.
func NewAnthropic(
	model string,
	opts ...AnthropicOption,
) (*Anthropic, error) {
	a := &Anthropic{
		model:       model,
		httpTimeout: defaultHTTPTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if strings.TrimSpace(a.model) == "" {
		return nil, errors.New("inference: empty model")
	}
	if a.httpTimeout <= 0 {
		return nil, errors.New("inference: non-positive http timeout")
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: a.httpTimeout}
	}

	reqOpts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(a.httpClient),
	}
	if a.apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(a.apiKey))
	}
	if a.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(a.baseURL))
	}
	a.client = anthropic.NewClient(reqOpts...)
	return a, nil
}

// Complete implements Service.
func (a *Anthropic) Complete(
	ctx context.Context,
	req Request,
) (*Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("inference: complete: %w", err)
	}
	return &Response{
		Text:  messageText(msg),
		Usage: usageOf(msg.Usage),
	}, nil
}

// Stream implements Service.
func (a *Anthropic) Stream(
	ctx context.Context,
	req Request,
	onDelta func(text string),
) (*Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	acc := anthropic.Message{}
	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, fmt.Errorf(
				"inference: accumulate stream event: %w", err,
			)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				sb.WriteString(delta.Text)
				if onDelta != nil {
					onDelta(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("inference: stream: %w", err)
	}
	return &Response{
		Text:  sb.String(),
		Usage: usageOf(acc.Usage),
	}, nil
}

func (a *Anthropic) buildParams(
	req Request,
) (anthropic.MessageNewParams, error) {
	if req.Context == "" {
		return anthropic.MessageNewParams{},
			errors.New("inference: empty context")
	}

	ctxBlock := anthropic.NewTextBlock(req.Context)
	if req.CacheContext && ctxBlock.OfText != nil {
		ctxBlock.OfText.CacheControl =
			anthropic.NewCacheControlEphemeralParam()
	}
	blocks := []anthropic.ContentBlockParamUnion{ctxBlock}
	if req.Question != "" {
		blocks = append(blocks, anthropic.NewTextBlock(req.Question))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: blocks,
			},
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params, nil
}

func messageText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

func usageOf(u anthropic.Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
	}
}
