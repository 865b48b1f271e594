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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAnthropic_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewAnthropic("  ")
	require.Error(t, err)

	_, err = NewAnthropic("claude-sonnet-4-5", WithHTTPTimeout(0))
	require.Error(t, err)
}

func TestBuildParams_CacheBreakpoint(t *testing.T) {
	t.Parallel()

	svc, err := NewAnthropic("claude-sonnet-4-5", WithAPIKey("k"))
	require.NoError(t, err)

	temp := 0.3
	params, err := svc.buildParams(Request{
		System:       "be terse",
		Context:      "big reference text",
		Question:     "what is the title?",
		MaxTokens:    500,
		Temperature:  &temp,
		CacheContext: true,
	})
	require.NoError(t, err)

	require.Equal(t, int64(500), params.MaxTokens)
	require.Len(t, params.Messages, 1)
	require.Len(t, params.Messages[0].Content, 2)

	ctxBlock := params.Messages[0].Content[0]
	require.NotNil(t, ctxBlock.OfText)
	require.Equal(t, "big reference text", ctxBlock.OfText.Text)

	// The breakpoint marker must serialize on the context block only.
	raw, err := json.Marshal(ctxBlock)
	require.NoError(t, err)
	require.Contains(t, string(raw), "cache_control")

	raw, err = json.Marshal(params.Messages[0].Content[1])
	require.NoError(t, err)
	require.NotContains(t, string(raw), "cache_control")

	require.Len(t, params.System, 1)
	require.Equal(t, "be terse", params.System[0].Text)
}

func TestBuildParams_ProbeShape(t *testing.T) {
	t.Parallel()

	svc, err := NewAnthropic("claude-sonnet-4-5", WithAPIKey("k"))
	require.NoError(t, err)

	params, err := svc.buildParams(Request{
		Context:      "big reference text",
		MaxTokens:    1,
		CacheContext: true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), params.MaxTokens)
	require.Len(t, params.Messages[0].Content, 1)
	require.Empty(t, params.System)
}

func TestBuildParams_EmptyContext(t *testing.T) {
	t.Parallel()

	svc, err := NewAnthropic("claude-sonnet-4-5", WithAPIKey("k"))
	require.NoError(t, err)

	_, err = svc.buildParams(Request{Question: "hi"})
	require.Error(t, err)
}

func TestComplete_SurfacesUsage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"id": "msg_01",
				"type": "message",
				"role": "assistant",
				"model": "claude-sonnet-4-5",
				"content": [{"type": "text", "text": "Pride and Prejudice."}],
				"stop_reason": "end_turn",
				"usage": {
					"input_tokens": 22,
					"output_tokens": 330,
					"cache_read_input_tokens": 151629,
					"cache_creation_input_tokens": 0
				}
			}`)
		},
	))
	t.Cleanup(srv.Close)

	svc, err := NewAnthropic(
		"claude-sonnet-4-5",
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
	)
	require.NoError(t, err)

	rsp, err := svc.Complete(context.Background(), Request{
		Context:      "reference",
		MaxTokens:    1,
		CacheContext: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Pride and Prejudice.", rsp.Text)
	require.Equal(t, Usage{
		InputTokens:         22,
		OutputTokens:        330,
		CacheReadTokens:     151629,
		CacheCreationTokens: 0,
	}, rsp.Usage)
}

func TestStream_DeltasAndUsage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			events := []struct {
				name string
				data string
			}{
				{
					"message_start",
					`{"type":"message_start","message":{"id":"msg_01",` +
						`"type":"message","role":"assistant",` +
						`"model":"claude-sonnet-4-5","content":[],` +
						`"stop_reason":null,"usage":{"input_tokens":22,` +
						`"output_tokens":1,` +
						`"cache_read_input_tokens":151629,` +
						`"cache_creation_input_tokens":0}}}`,
				},
				{
					"content_block_start",
					`{"type":"content_block_start","index":0,` +
						`"content_block":{"type":"text","text":""}}`,
				},
				{
					"content_block_delta",
					`{"type":"content_block_delta","index":0,` +
						`"delta":{"type":"text_delta","text":"Pride and "}}`,
				},
				{
					"content_block_delta",
					`{"type":"content_block_delta","index":0,` +
						`"delta":{"type":"text_delta","text":"Prejudice."}}`,
				},
				{
					"content_block_stop",
					`{"type":"content_block_stop","index":0}`,
				},
				{
					"message_delta",
					`{"type":"message_delta","delta":{` +
						`"stop_reason":"end_turn","stop_sequence":null},` +
						`"usage":{"output_tokens":330}}`,
				},
				{
					"message_stop",
					`{"type":"message_stop"}`,
				},
			}
			for _, ev := range events {
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			}
		},
	))
	t.Cleanup(srv.Close)

	svc, err := NewAnthropic(
		"claude-sonnet-4-5",
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
	)
	require.NoError(t, err)

	var deltas []string
	rsp, err := svc.Stream(
		context.Background(),
		Request{
			Context:      "reference",
			Question:     "title?",
			MaxTokens:    500,
			CacheContext: true,
		},
		func(text string) { deltas = append(deltas, text) },
	)
	require.NoError(t, err)
	require.Equal(t, []string{"Pride and ", "Prejudice."}, deltas)
	require.Equal(t, "Pride and Prejudice.", rsp.Text)
	require.Equal(t, int64(22), rsp.Usage.InputTokens)
	require.Equal(t, int64(330), rsp.Usage.OutputTokens)
	require.Equal(t, int64(151629), rsp.Usage.CacheReadTokens)
}
