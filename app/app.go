//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package app wires the cachewarm demonstration: fetch reference
// documents, warm the remote prompt cache while the simulated user is
// still typing, then measure the real request against a sequential
// baseline.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap/zapcore"

	"trpc.group/trpc-go/cachewarm/internal/contextdoc"
	"trpc.group/trpc-go/cachewarm/internal/inference"
	"trpc.group/trpc-go/cachewarm/internal/log"
	"trpc.group/trpc-go/cachewarm/internal/race"
	"trpc.group/trpc-go/cachewarm/internal/report"
)

const (
	appName = "cachewarm"

	apiKeyEnvName    = "ANTHROPIC_API_KEY"
	authTokenEnvName = "ANTHROPIC_AUTH_TOKEN"

	defaultModel       = "claude-sonnet-4-5"
	defaultMaxTokens   = 500
	defaultTemperature = 1.0
	defaultThinkTime   = 10 * time.Second

	defaultFetchTimeout = 30 * time.Second
	defaultHTTPTimeout  = 2 * time.Minute

	defaultSystemPrompt = "You answer questions about the provided " +
		"reference documents, briefly and accurately."
	defaultQuestion = "What is the title of this novel, and who " +
		"wrote it? Answer in one sentence."

	// Prompt caching needs a large context to be worth demonstrating;
	// a public-domain novel gives a few hundred thousand characters.
	defaultResources = "novel=" +
		"https://www.gutenberg.org/cache/epub/1342/pg1342.txt"

	answerPreviewLimit = 150
)

// Main runs the cachewarm CLI and returns an exit code.
//
// args should not include the program name.
func Main(args []string) int {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			log.Errorf("%v", exitErr.Err)
			return exitErr.Code
		}
		log.Errorf("%v", err)
		return 1
	}
	return 0
}

type exitError struct {
	Code int
	Err  error
}

func (e *exitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func run(ctx context.Context, args []string) error {
	opts, err := parseRunOptions(args)
	if err != nil {
		return err
	}
	if opts.Verbose {
		log.SetLevel(zapcore.DebugLevel)
	}
	if err := validateRunOptions(opts); err != nil {
		return &exitError{Code: 2, Err: err}
	}

	apiKey := resolveAPIKey()
	if apiKey == "" {
		return &exitError{
			Code: 1,
			Err: fmt.Errorf(
				"%s is not set", apiKeyEnvName,
			),
		}
	}

	resources, err := opts.resourceMap()
	if err != nil {
		return &exitError{Code: 2, Err: err}
	}

	fmt.Println("=== Speculative Prompt Cache Warming ===")
	fmt.Println()
	fmt.Printf("Model:      %s\n", opts.Model)
	fmt.Printf("Think time: %v\n", opts.ThinkTime)
	fmt.Printf("Mode:       %s\n", opts.Mode)
	fmt.Println()

	docs, err := loadDocuments(ctx, opts, resources)
	if err != nil {
		return err
	}

	svc, err := newService(opts, apiKey)
	if err != nil {
		return err
	}

	orc, err := race.New(
		svc,
		race.WithSystemPrompt(opts.System),
		race.WithMaxTokens(int64(opts.MaxTokens)),
		race.WithTemperature(opts.Temperature),
	)
	if err != nil {
		return &exitError{
			Code: 1,
			Err:  fmt.Errorf("create orchestrator failed: %w", err),
		}
	}

	var baseline, speculative *report.Stats
	if opts.Mode == modeBoth || opts.Mode == modeBaseline {
		baseline, err = runPath(ctx, orc, docs, opts, false)
		if err != nil {
			return err
		}
	}
	if opts.Mode == modeBoth || opts.Mode == modeSpeculative {
		speculative, err = runPath(ctx, orc, docs, opts, true)
		if err != nil {
			return err
		}
	}

	if baseline != nil && speculative != nil {
		report.WriteComparison(os.Stdout, *baseline, *speculative)
	}
	return nil
}

func loadDocuments(
	ctx context.Context,
	opts runOptions,
	resources map[string]string,
) (map[string]string, error) {
	loader, err := contextdoc.NewLoader(
		contextdoc.WithTimeout(opts.FetchTimeout),
	)
	if err != nil {
		return nil, &exitError{
			Code: 1,
			Err:  fmt.Errorf("create loader failed: %w", err),
		}
	}

	fmt.Printf("Fetching %d resource(s)...\n", len(resources))
	started := time.Now()
	docs, err := loader.Fetch(ctx, resources)
	if err != nil {
		return nil, &exitError{
			Code: 1,
			Err:  fmt.Errorf("load context failed: %w", err),
		}
	}

	total := 0
	for _, content := range docs {
		total += len(content)
	}
	fmt.Printf(
		"Fetched %d resource(s), %d bytes in %v\n\n",
		len(docs),
		total,
		time.Since(started).Round(time.Millisecond),
	)
	return docs, nil
}

func newService(
	opts runOptions,
	apiKey string,
) (*inference.Anthropic, error) {
	svcOpts := []inference.AnthropicOption{
		inference.WithAPIKey(apiKey),
		inference.WithHTTPTimeout(opts.HTTPTimeout),
	}
	if opts.BaseURL != "" {
		svcOpts = append(svcOpts, inference.WithBaseURL(opts.BaseURL))
	}
	svc, err := inference.NewAnthropic(opts.Model, svcOpts...)
	if err != nil {
		return nil, &exitError{
			Code: 1,
			Err: fmt.Errorf(
				"create inference service failed: %w", err,
			),
		}
	}
	return svc, nil
}

// runPath executes one measured path. Each path builds a fresh context
// message so the two paths never share a cache entry: the comparison
// would be meaningless if the baseline run warmed the cache for the
// speculative one.
func runPath(
	ctx context.Context,
	orc *race.Orchestrator,
	docs map[string]string,
	opts runOptions,
	speculative bool,
) (*report.Stats, error) {
	msg, err := contextdoc.NewMessage(docs)
	if err != nil {
		return nil, &exitError{
			Code: 1,
			Err:  fmt.Errorf("build context failed: %w", err),
		}
	}

	label := "baseline"
	if speculative {
		label = "speculative"
	}
	fmt.Printf(
		"--- %s run (context %d bytes, token %s) ---\n",
		label,
		msg.Size(),
		msg.Token(),
	)

	var res *race.Result
	if speculative {
		res, err = orc.Run(ctx, msg, opts.Question, opts.ThinkTime)
	} else {
		res, err = orc.RunBaseline(
			ctx, msg, opts.Question, opts.ThinkTime,
		)
	}
	if err != nil {
		return nil, &exitError{
			Code: 1,
			Err:  fmt.Errorf("%s run failed: %w", label, err),
		}
	}

	stats := report.FromResult(label, res)
	report.WriteRun(os.Stdout, stats)
	fmt.Printf("   Answer: %s\n\n", preview(res.Answer))
	return &stats, nil
}

func preview(answer string) string {
	if len(answer) <= answerPreviewLimit {
		return answer
	}
	return answer[:answerPreviewLimit] + "..."
}

func resolveAPIKey() string {
	if key := os.Getenv(apiKeyEnvName); key != "" {
		return key
	}
	return os.Getenv(authTokenEnvName)
}
