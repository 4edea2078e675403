// Package main is the entry point for pgedge-salesingest.
package main

import (
	"fmt"
	"os"

	"github.com/pgEdge/pgedge-salesingest/internal/cli"

	// Register record store backends
	_ "github.com/pgEdge/pgedge-salesingest/internal/store/memory"
	_ "github.com/pgEdge/pgedge-salesingest/internal/store/postgres"
	_ "github.com/pgEdge/pgedge-salesingest/internal/store/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
