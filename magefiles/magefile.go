//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the tracestore project using Mage.
//
// Usage:
//
//	mage build       Compile the tracestore binary to bin/
//	mage test:unit   Run package tests
//	mage test:race   Run package tests with the race detector
//	mage test:cover  Write a coverage profile to bin/coverage.out
//	mage lint        Run golangci-lint
//	mage clean       Remove build artifacts and exported traces
//	mage install     Install tracestore to GOPATH/bin
//	mage stats       Print Go lines of code and documentation word counts
package main
