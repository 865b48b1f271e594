//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package contextdoc fetches reference documents and renders them into
// the immutable context message reused by the warm-up and final calls.
package contextdoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultConcurrency  = 4
	defaultUserAgent    = "cachewarm/0.1"
)

// ErrNoResources is returned when Fetch is called with an empty
// resource set. An empty context cannot exercise the cache path, so
// the loader rejects it instead of proceeding with empty text.
var ErrNoResources = errors.New("contextdoc: no resources")

type statusError struct {
	name   string
	status int
}

func (e statusError) Error() string {
	return fmt.Sprintf(
		"contextdoc: resource %q: status %d",
		e.name,
		e.status,
	)
}

// Loader downloads named remote resources.
type Loader struct {
	httpClient  *http.Client
	timeout     time.Duration
	concurrency int
	userAgent   string
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) { l.httpClient = client }
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(l *Loader) { l.timeout = timeout }
}

// WithConcurrency bounds how many fetches run at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) { l.concurrency = n }
}

// WithUserAgent sets the User-Agent header on fetches.
func WithUserAgent(ua string) Option {
	return func(l *Loader) { l.userAgent = ua }
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{
		httpClient:  http.DefaultClient,
		timeout:     defaultFetchTimeout,
		concurrency: defaultConcurrency,
		userAgent:   defaultUserAgent,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.httpClient == nil {
		return nil, errors.New("contextdoc: nil http client")
	}
	if l.timeout <= 0 {
		return nil, errors.New("contextdoc: non-positive timeout")
	}
	if l.concurrency <= 0 {
		return nil, errors.New("contextdoc: non-positive concurrency")
	}
	return l, nil
}

// Fetch downloads every named resource concurrently and returns a
// mapping from name to content. The operation is atomic: if any single
// fetch fails, the first error is returned and no partial mapping is
// produced. A partial context would silently change the cache key, so
// there is no partial-result policy and no retry.
func (l *Loader) Fetch(
	ctx context.Context,
	resources map[string]string,
) (map[string]string, error) {
	if len(resources) == 0 {
		return nil, ErrNoResources
	}

	var mu sync.Mutex
	out := make(map[string]string, len(resources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for name, url := range resources {
		g.Go(func() error {
			content, err := l.fetchOne(gctx, name, url)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = content
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) fetchOne(
	ctx context.Context,
	name string,
	url string,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf(
			"contextdoc: fetch resource %q: %w", name, err,
		)
	}
	req.Header.Set("User-Agent", l.userAgent)

	rsp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(
			"contextdoc: fetch resource %q: %w", name, err,
		)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		return "", statusError{name: name, status: rsp.StatusCode}
	}

	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		return "", fmt.Errorf(
			"contextdoc: read resource %q: %w", name, err,
		)
	}
	return string(raw), nil
}
