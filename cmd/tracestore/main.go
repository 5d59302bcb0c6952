// Package main provides the tracestore CLI.
package main

import "github.com/mesh-intelligence/tracestore/internal/cli"

func main() {
	cli.Execute()
}
