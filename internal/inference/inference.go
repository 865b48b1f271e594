//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package inference defines the boundary to the remote inference
// service and its Anthropic implementation.
package inference

import "context"

// Usage is the service's token accounting for one call, surfaced
// unmodified. Written once by the call that produced it.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// Request describes one call to the service.
//
// Context carries the cacheable payload verbatim: the warm-up probe and
// the final request must pass byte-identical Context values or the
// remote cache lookup misses.
type Request struct {
	// System is the system instruction, optional.
	System string
	// Context is the cacheable context block, required.
	Context string
	// Question is an optional trailing block appended after Context
	// in the same user turn. Empty for warm-up probes.
	Question string
	// MaxTokens bounds the output length. Warm-up probes use 1.
	MaxTokens int64
	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64
	// CacheContext marks the context block with a cache breakpoint.
	CacheContext bool
}

// Response is the completed result of one call.
type Response struct {
	Text  string
	Usage Usage
}

// Service accepts a context plus prompt and returns generated output
// with usage metadata. Implementations must support a cache-write /
// cache-read mode keyed by exact context equality.
type Service interface {
	// Complete issues a blocking request and returns the final text.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream issues a streaming request. onDelta is invoked for every
	// non-empty output text fragment, in order, before Stream returns.
	Stream(
		ctx context.Context,
		req Request,
		onDelta func(text string),
	) (*Response, error)
}
