// Package main provides the CLI for VectorFlow, the AI pipeline builder.
package main

import (
	"os"

	"github.com/leapstack-labs/vectorflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
