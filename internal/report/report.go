//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package report renders per-run statistics and the final comparison
// between the baseline and speculative paths.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"trpc.group/trpc-go/cachewarm/internal/inference"
	"trpc.group/trpc-go/cachewarm/internal/race"
)

// Stats is an immutable snapshot of one measured run, used only for
// reporting and comparison, never for control decisions.
type Stats struct {
	Label string

	Usage            inference.Usage
	TimeToFirstToken time.Duration
	TotalTime        time.Duration
	WaitTime         time.Duration

	Speculative bool
	ProbeTime   time.Duration
	ProbeFailed bool
}

// FromResult snapshots a completed run.
func FromResult(label string, res *race.Result) Stats {
	if res == nil {
		return Stats{Label: label}
	}
	return Stats{
		Label:            label,
		Usage:            res.Usage,
		TimeToFirstToken: res.TimeToFirstToken,
		TotalTime:        res.TotalTime,
		WaitTime:         res.WaitTime,
		Speculative:      res.Speculative,
		ProbeTime:        res.ProbeTime,
		ProbeFailed:      res.ProbeErr != nil,
	}
}

// Improvement returns (standard - speculative) / standard * 100.
// A zero standard value yields zero.
func Improvement(standard, speculative time.Duration) float64 {
	if standard <= 0 {
		return 0
	}
	return float64(standard-speculative) / float64(standard) * 100
}

// WriteRun prints the per-run statistics block.
func WriteRun(w io.Writer, s Stats) {
	fmt.Fprintf(w, "[%s]\n", s.Label)
	fmt.Fprintf(w, "   Time to first token: %v\n", s.TimeToFirstToken)
	fmt.Fprintf(w, "   Total time:          %v\n", s.TotalTime)
	fmt.Fprintf(w, "   Wait before send:    %v\n", s.WaitTime)
	if s.Speculative {
		if s.ProbeFailed {
			fmt.Fprintf(
				w,
				"   Warm-up probe:       failed after %v (uncached path)\n",
				s.ProbeTime,
			)
		} else {
			fmt.Fprintf(w, "   Warm-up probe:       %v\n", s.ProbeTime)
		}
	}
	fmt.Fprintf(
		w,
		"   Tokens - input: %d, output: %d, cache_read: %d, cache_creation: %d\n",
		s.Usage.InputTokens,
		s.Usage.OutputTokens,
		s.Usage.CacheReadTokens,
		s.Usage.CacheCreationTokens,
	)
}

// WriteComparison prints the final table comparing both paths.
func WriteComparison(w io.Writer, standard, speculative Stats) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "FINAL COMPARISON")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(
		w,
		"%-14s %-14s %-14s %-12s\n",
		"Run", "TTFT", "Total", "CacheRead",
	)
	fmt.Fprintln(w, strings.Repeat("-", 56))
	for _, s := range []Stats{standard, speculative} {
		fmt.Fprintf(
			w,
			"%-14s %-14v %-14v %-12d\n",
			s.Label,
			s.TimeToFirstToken,
			s.TotalTime,
			s.Usage.CacheReadTokens,
		)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(
		w,
		"TTFT improvement:  %.1f%%\n",
		Improvement(standard.TimeToFirstToken, speculative.TimeToFirstToken),
	)
	fmt.Fprintf(
		w,
		"Total improvement: %.1f%%\n",
		Improvement(standard.TotalTime, speculative.TotalTime),
	)
}
