//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

package contextdoc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetch_AllResources(t *testing.T) {
	t.Parallel()

	srvA := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("alpha content"))
		},
	))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("beta content"))
		},
	))
	t.Cleanup(srvB.Close)

	loader, err := NewLoader()
	require.NoError(t, err)

	docs, err := loader.Fetch(context.Background(), map[string]string{
		"alpha": srvA.URL,
		"beta":  srvB.URL,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "alpha content", docs["alpha"])
	require.Equal(t, "beta content", docs["beta"])
}

func TestFetch_FailsAtomically(t *testing.T) {
	t.Parallel()

	ok := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("fine"))
		},
	))
	t.Cleanup(ok.Close)
	broken := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	))
	t.Cleanup(broken.Close)

	loader, err := NewLoader()
	require.NoError(t, err)

	docs, err := loader.Fetch(context.Background(), map[string]string{
		"good": ok.URL,
		"bad":  broken.URL,
	})
	require.Error(t, err)
	require.Nil(t, docs)
	require.Contains(t, err.Error(), `"bad"`)
	require.Contains(t, err.Error(), "404")
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	))
	t.Cleanup(slow.Close)

	loader, err := NewLoader(WithTimeout(50 * time.Millisecond))
	require.NoError(t, err)

	docs, err := loader.Fetch(context.Background(), map[string]string{
		"slow": slow.URL,
	})
	require.Error(t, err)
	require.Nil(t, docs)
}

func TestFetch_EmptyResourceSet(t *testing.T) {
	t.Parallel()

	loader, err := NewLoader()
	require.NoError(t, err)

	docs, err := loader.Fetch(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoResources)
	require.Nil(t, docs)
}

func TestNewLoader_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(WithHTTPClient(nil))
	require.Error(t, err)

	_, err = NewLoader(WithTimeout(-time.Second))
	require.Error(t, err)

	_, err = NewLoader(WithConcurrency(0))
	require.Error(t, err)
}
