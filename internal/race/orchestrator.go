//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package race overlaps a cache-warming probe with the user's think
// time, then issues the real request against the warmed cache.
//
// Each run is single-shot: WARMING (probe outstanding, waiting on
// think time) -> READY (probe joined, input available) -> COMPLETE or
// FAILED. There are no backward transitions and no shared mutable
// state between the probe and the wait; each produces its own
// completion signal.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/cachewarm/internal/contextdoc"
	"trpc.group/trpc-go/cachewarm/internal/inference"
	"trpc.group/trpc-go/cachewarm/internal/log"
)

const (
	defaultMaxTokens   = 1024
	defaultProbeBudget = 1
)

// Result captures one measured run. Written once, never mutated.
type Result struct {
	// Answer is the full generated output of the real request.
	Answer string
	// Usage is the real request's token accounting, surfaced
	// unmodified from the service.
	Usage inference.Usage

	// TimeToFirstToken is measured from the real request's send to
	// the first non-empty output fragment.
	TimeToFirstToken time.Duration
	// TotalTime is measured from the real request's send to stream
	// completion.
	TotalTime time.Duration
	// WaitTime is the elapsed time from run start until the real
	// request was sent: max(think time, probe time) on the
	// speculative path, think time on the baseline path.
	WaitTime time.Duration

	// Speculative reports whether the warm-up probe ran.
	Speculative bool
	// ProbeTime is how long the probe took, zero on the baseline path.
	ProbeTime time.Duration
	// ProbeUsage is the probe's token accounting, nil when the probe
	// did not run or failed.
	ProbeUsage *inference.Usage
	// ProbeErr records a failed probe. Non-fatal: the run degraded to
	// the uncached path and the real request was still attempted.
	ProbeErr error
}

// Orchestrator runs the cache-warming race against one service.
type Orchestrator struct {
	svc inference.Service

	system      string
	maxTokens   int64
	temperature *float64
	probeBudget int64
	onDelta     func(text string)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSystemPrompt sets the system instruction for all calls.
func WithSystemPrompt(system string) Option {
	return func(o *Orchestrator) { o.system = system }
}

// WithMaxTokens bounds the real request's output length.
func WithMaxTokens(maxTokens int64) Option {
	return func(o *Orchestrator) { o.maxTokens = maxTokens }
}

// WithTemperature sets the sampling temperature for the real request.
func WithTemperature(temperature float64) Option {
	return func(o *Orchestrator) { o.temperature = &temperature }
}

// WithProbeBudget overrides the probe's output budget.
func WithProbeBudget(budget int64) Option {
	return func(o *Orchestrator) { o.probeBudget = budget }
}

// WithDeltaHandler registers a callback for streamed output fragments
// of the real request.
func WithDeltaHandler(onDelta func(text string)) Option {
	return func(o *Orchestrator) { o.onDelta = onDelta }
}

// New creates an orchestrator.
func New(svc inference.Service, opts ...Option) (*Orchestrator, error) {
	if svc == nil {
		return nil, errors.New("race: nil inference service")
	}
	o := &Orchestrator{
		svc:         svc,
		maxTokens:   defaultMaxTokens,
		probeBudget: defaultProbeBudget,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxTokens <= 0 {
		return nil, errors.New("race: non-positive max tokens")
	}
	if o.probeBudget <= 0 {
		return nil, errors.New("race: non-positive probe budget")
	}
	return o, nil
}

type probeOutcome struct {
	usage *inference.Usage
	took  time.Duration
	err   error
}

// Run executes the speculative path: the warm-up probe and the think
// time elapse concurrently, and the real request is sent only after
// both have completed. Joining on the probe matters even when the
// think time dominates: sending the real request against a
// still-forming cache entry risks a miss and duplicated cost.
//
// A failed probe is recorded on the Result and the run degrades to the
// uncached path; only a failed real request is returned as an error.
func (o *Orchestrator) Run(
	ctx context.Context,
	msg *contextdoc.Message,
	question string,
	thinkTime time.Duration,
) (*Result, error) {
	if msg == nil {
		return nil, errors.New("race: nil context message")
	}

	start := time.Now()

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()

	probeCh := make(chan probeOutcome, 1)
	go func() {
		probeCh <- o.probe(probeCtx, msg)
	}()

	// WARMING: the user is still typing.
	if !sleepWithContext(ctx, thinkTime) {
		return nil, ctx.Err()
	}

	// The question is now available, but the request must not go out
	// until the probe has joined.
	var outcome probeOutcome
	select {
	case outcome = <-probeCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if outcome.err != nil {
		log.Warnf(
			"cache warm-up failed, continuing uncached: %v",
			outcome.err,
		)
	}

	// READY: both the probe and the think time have completed.
	res, sendAt, err := o.ask(ctx, msg, question)
	if err != nil {
		return nil, err
	}
	res.WaitTime = sendAt.Sub(start)
	res.Speculative = true
	res.ProbeTime = outcome.took
	res.ProbeUsage = outcome.usage
	res.ProbeErr = outcome.err
	return res, nil
}

// RunBaseline executes the sequential path used purely as a
// comparison baseline: the think time elapses first, then the real
// request is issued with no prior warm-up.
func (o *Orchestrator) RunBaseline(
	ctx context.Context,
	msg *contextdoc.Message,
	question string,
	thinkTime time.Duration,
) (*Result, error) {
	if msg == nil {
		return nil, errors.New("race: nil context message")
	}

	start := time.Now()
	if !sleepWithContext(ctx, thinkTime) {
		return nil, ctx.Err()
	}

	res, sendAt, err := o.ask(ctx, msg, question)
	if err != nil {
		return nil, err
	}
	res.WaitTime = sendAt.Sub(start)
	return res, nil
}

func (o *Orchestrator) probe(
	ctx context.Context,
	msg *contextdoc.Message,
) probeOutcome {
	start := time.Now()
	rsp, err := o.svc.Complete(ctx, inference.Request{
		System:       o.system,
		Context:      msg.Text(),
		MaxTokens:    o.probeBudget,
		CacheContext: true,
	})
	took := time.Since(start)
	if err != nil {
		return probeOutcome{
			took: took,
			err:  fmt.Errorf("race: warm-up probe: %w", err),
		}
	}
	log.Debugf(
		"warm-up probe done in %v (cache_creation=%d cache_read=%d)",
		took,
		rsp.Usage.CacheCreationTokens,
		rsp.Usage.CacheReadTokens,
	)
	usage := rsp.Usage
	return probeOutcome{usage: &usage, took: took}
}

// ask issues the real request, reusing the byte-identical context text
// with the question appended as a separate trailing block.
func (o *Orchestrator) ask(
	ctx context.Context,
	msg *contextdoc.Message,
	question string,
) (*Result, time.Time, error) {
	req := inference.Request{
		System:       o.system,
		Context:      msg.Text(),
		Question:     question,
		MaxTokens:    o.maxTokens,
		Temperature:  o.temperature,
		CacheContext: true,
	}

	sendAt := time.Now()
	firstSeen := false
	var firstAt time.Duration
	rsp, err := o.svc.Stream(ctx, req, func(delta string) {
		if !firstSeen {
			firstSeen = true
			firstAt = time.Since(sendAt)
		}
		if o.onDelta != nil {
			o.onDelta(delta)
		}
	})
	if err != nil {
		return nil, time.Time{},
			fmt.Errorf("race: final request: %w", err)
	}
	total := time.Since(sendAt)
	if !firstSeen {
		firstAt = total
	}

	return &Result{
		Answer:           rsp.Text,
		Usage:            rsp.Usage,
		TimeToFirstToken: firstAt,
		TotalTime:        total,
	}, sendAt, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
