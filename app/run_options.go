//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configEnvName = "CACHEWARM_CONFIG"

	modeBoth        = "both"
	modeSpeculative = "speculative"
	modeBaseline    = "baseline"
)

type runOptions struct {
	ConfigPath string

	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	System      string
	Question    string

	ThinkTime time.Duration
	Mode      string

	Resources    string
	resourcesMap map[string]string

	FetchTimeout time.Duration
	HTTPTimeout  time.Duration

	Verbose bool
}

func parseRunOptions(args []string) (runOptions, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := runOptions{
		Model:        defaultModel,
		MaxTokens:    defaultMaxTokens,
		Temperature:  defaultTemperature,
		System:       defaultSystemPrompt,
		Question:     defaultQuestion,
		ThinkTime:    defaultThinkTime,
		Mode:         modeBoth,
		Resources:    defaultResources,
		FetchTimeout: defaultFetchTimeout,
		HTTPTimeout:  defaultHTTPTimeout,
	}

	fs.StringVar(
		&opts.ConfigPath,
		"config",
		"",
		"Path to YAML config file; can also be set via $"+configEnvName,
	)
	fs.StringVar(
		&opts.Model,
		"model",
		defaultModel,
		"Anthropic model name",
	)
	fs.StringVar(
		&opts.BaseURL,
		"base-url",
		"",
		"Anthropic API base URL override (optional)",
	)
	fs.IntVar(
		&opts.MaxTokens,
		"max-tokens",
		defaultMaxTokens,
		"Max output tokens for the real request",
	)
	fs.Float64Var(
		&opts.Temperature,
		"temperature",
		defaultTemperature,
		"Sampling temperature",
	)
	fs.StringVar(
		&opts.System,
		"system-prompt",
		defaultSystemPrompt,
		"System instruction sent with every call",
	)
	fs.StringVar(
		&opts.Question,
		"question",
		defaultQuestion,
		"Question sent once the simulated think time elapses",
	)
	fs.DurationVar(
		&opts.ThinkTime,
		"think-time",
		defaultThinkTime,
		"Simulated user think/typing time",
	)
	fs.StringVar(
		&opts.Mode,
		"mode",
		modeBoth,
		"Run mode: both|speculative|baseline",
	)
	fs.StringVar(
		&opts.Resources,
		"resources",
		defaultResources,
		"Comma-separated name=url reference resources",
	)
	fs.DurationVar(
		&opts.FetchTimeout,
		"fetch-timeout",
		defaultFetchTimeout,
		"Per-resource download timeout",
	)
	fs.DurationVar(
		&opts.HTTPTimeout,
		"http-timeout",
		defaultHTTPTimeout,
		"Timeout for each inference API call",
	)
	fs.BoolVar(
		&opts.Verbose,
		"verbose",
		false,
		"Enable debug logging",
	)

	if err := fs.Parse(args); err != nil {
		return runOptions{}, &exitError{Code: 2, Err: err}
	}
	if len(fs.Args()) > 0 {
		return runOptions{}, &exitError{
			Code: 2,
			Err: fmt.Errorf(
				"unexpected args: %s",
				strings.Join(fs.Args(), " "),
			),
		}
	}

	setFlags := make(map[string]struct{})
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = struct{}{}
	})

	cfgPath := resolveConfigPath(opts.ConfigPath)
	if cfgPath == "" {
		return opts, nil
	}

	cfg, err := loadConfigFile(cfgPath)
	if err != nil {
		return runOptions{}, &exitError{
			Code: 1,
			Err:  fmt.Errorf("load config failed: %w", err),
		}
	}
	if cfg == nil {
		return opts, nil
	}
	if err := cfg.apply(&opts, setFlags); err != nil {
		return runOptions{}, &exitError{
			Code: 1,
			Err:  fmt.Errorf("apply config failed: %w", err),
		}
	}

	return opts, nil
}

func validateRunOptions(opts runOptions) error {
	switch opts.Mode {
	case modeBoth, modeSpeculative, modeBaseline:
	default:
		return fmt.Errorf("invalid mode %q", opts.Mode)
	}
	if opts.MaxTokens <= 0 {
		return errors.New("max-tokens must be positive")
	}
	if opts.ThinkTime < 0 {
		return errors.New("think-time must not be negative")
	}
	if strings.TrimSpace(opts.Question) == "" {
		return errors.New("empty question")
	}
	if _, err := opts.resourceMap(); err != nil {
		return err
	}
	return nil
}

// resourceMap resolves the resource set: the config file's map wins
// unless the -resources flag was used, which is handled in apply.
func (o runOptions) resourceMap() (map[string]string, error) {
	if o.resourcesMap != nil {
		return o.resourcesMap, nil
	}
	return parseResourceList(o.Resources)
}

func parseResourceList(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty resource list")
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		url = strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid resource %q", part)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate resource %q", name)
		}
		out[name] = url
	}
	if len(out) == 0 {
		return nil, errors.New("empty resource list")
	}
	return out, nil
}

func resolveConfigPath(raw string) string {
	path := strings.TrimSpace(raw)
	if path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(configEnvName))
}

type fileConfig struct {
	Model        *string  `yaml:"model,omitempty"`
	BaseURL      *string  `yaml:"base_url,omitempty"`
	MaxTokens    *int     `yaml:"max_tokens,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	SystemPrompt *string  `yaml:"system_prompt,omitempty"`
	Question     *string  `yaml:"question,omitempty"`

	ThinkTime *string `yaml:"think_time,omitempty"`
	Mode      *string `yaml:"mode,omitempty"`

	Resources map[string]string `yaml:"resources,omitempty"`

	FetchTimeout *string `yaml:"fetch_timeout,omitempty"`
	HTTPTimeout  *string `yaml:"http_timeout,omitempty"`

	Verbose *bool `yaml:"verbose,omitempty"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// apply merges the file config into opts. Explicitly set flags win
// over file values.
func (c *fileConfig) apply(
	opts *runOptions,
	setFlags map[string]struct{},
) error {
	flagSet := func(name string) bool {
		_, ok := setFlags[name]
		return ok
	}

	if c.Model != nil && !flagSet("model") {
		opts.Model = *c.Model
	}
	if c.BaseURL != nil && !flagSet("base-url") {
		opts.BaseURL = *c.BaseURL
	}
	if c.MaxTokens != nil && !flagSet("max-tokens") {
		opts.MaxTokens = *c.MaxTokens
	}
	if c.Temperature != nil && !flagSet("temperature") {
		opts.Temperature = *c.Temperature
	}
	if c.SystemPrompt != nil && !flagSet("system-prompt") {
		opts.System = *c.SystemPrompt
	}
	if c.Question != nil && !flagSet("question") {
		opts.Question = *c.Question
	}
	if c.Mode != nil && !flagSet("mode") {
		opts.Mode = *c.Mode
	}
	if len(c.Resources) > 0 && !flagSet("resources") {
		opts.resourcesMap = c.Resources
	}
	if c.Verbose != nil && !flagSet("verbose") {
		opts.Verbose = *c.Verbose
	}

	durations := []struct {
		value *string
		flag  string
		dst   *time.Duration
	}{
		{c.ThinkTime, "think-time", &opts.ThinkTime},
		{c.FetchTimeout, "fetch-timeout", &opts.FetchTimeout},
		{c.HTTPTimeout, "http-timeout", &opts.HTTPTimeout},
	}
	for _, d := range durations {
		if d.value == nil || flagSet(d.flag) {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.flag, err)
		}
		*d.dst = parsed
	}
	return nil
}
