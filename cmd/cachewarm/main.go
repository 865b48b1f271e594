//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package main provides the cachewarm demo binary entrypoint.
package main

import (
	"os"

	"trpc.group/trpc-go/cachewarm/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return app.Main(args)
}
